package gamestate

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chriskillpack/dixit/pipeline"
	"github.com/stretchr/testify/require"
)

func record(clue string) *pipeline.ClueRecord {
	return &pipeline.ClueRecord{
		Captions:                 pipeline.CaptionSet{{Model: "blip", Text: "a bird"}},
		PreSessionInterpretation: "a bird on a wire",
		Transcript:               pipeline.Transcript{{Question: "What colour?", Answer: "Red"}},
		SessionHeld:              true,
		Interpretation:           "a red bird on a wire at dusk",
		Association:              "waiting",
		Clue:                     clue,
		Personality:              pipeline.DefaultPersonality,
	}
}

func TestLoadCreatesEmptyHand(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	h, err := s.Load("alice")
	require.NoError(t, err)
	require.Equal(t, 0, h.Len())

	path, err := s.Path("alice")
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	h, err := s.Load("bob")
	require.NoError(t, err)
	h.Add(Card{Hash: "00ff00ff00ff00ff", ImagePath: "/cards/1.jpg", Record: record("waiting")})
	h.Add(Card{Hash: "ff00ff00ff00ff00", ImagePath: "/cards/2.jpg", Record: record("dusk")})
	require.NoError(t, s.Save(h))

	back, err := s.Load("bob")
	require.NoError(t, err)
	require.Equal(t, h.Cards, back.Cards)
	require.Equal(t, []string{"/cards/1.jpg", "/cards/2.jpg"}, back.ImagePaths())
	require.Equal(t, "dusk", back.Records()[1].Clue)
}

func TestAddReplacesSameHash(t *testing.T) {
	h := &Hand{User: "carol"}
	require.False(t, h.Add(Card{Hash: "a", ImagePath: "1.jpg"}))
	require.False(t, h.Add(Card{Hash: "b", ImagePath: "2.jpg"}))
	require.True(t, h.Add(Card{Hash: "a", ImagePath: "3.jpg"}))

	require.Equal(t, []string{"3.jpg", "2.jpg"}, h.ImagePaths())
}

func TestRemove(t *testing.T) {
	newHand := func() *Hand {
		h := &Hand{}
		for _, p := range []string{"0.jpg", "1.jpg", "2.jpg", "3.jpg"} {
			h.Add(Card{Hash: p, ImagePath: p})
		}
		return h
	}

	h := newHand()
	require.NoError(t, h.Remove(0, 2, 2))
	require.Equal(t, []string{"1.jpg", "3.jpg"}, h.ImagePaths())

	h = newHand()
	require.Error(t, h.Remove(1, 4))
	require.Equal(t, 4, h.Len(), "failed remove must not change the hand")
}

func TestReset(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Update("dave", func(h *Hand) error {
		h.Add(Card{Hash: "a", ImagePath: "a.jpg", Record: record("x")})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.Reset("dave"))

	h, err := s.Load("dave")
	require.NoError(t, err)
	require.Equal(t, 0, h.Len())
}

func TestUpdateConcurrent(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update("erin", func(h *Hand) error {
				h.Add(Card{Hash: string(rune('a' + i)), ImagePath: "x.jpg"})
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	h, err := s.Load("erin")
	require.NoError(t, err)
	require.Equal(t, 20, h.Len())
}

func TestUserNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	path, err := s.Path("../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))

	_, err = s.Path("..")
	require.ErrorIs(t, err, ErrInvalidUser)
	_, err = s.Load("  ")
	require.ErrorIs(t, err, ErrInvalidUser)

	_, err = s.Load("frank")
	require.NoError(t, err)
	users, err := s.Users()
	require.NoError(t, err)
	require.Equal(t, []string{"frank"}, users)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gina.yaml"), []byte("my_cards: [unclosed"), 0o644))

	_, err = s.Load("gina")
	require.Error(t, err)
}
