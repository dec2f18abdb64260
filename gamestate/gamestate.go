// Package gamestate keeps the cards each player holds, together with the
// clue records computed for them, in one YAML file per player.
package gamestate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/chriskillpack/dixit/pipeline"
	"gopkg.in/yaml.v3"
)

var ErrInvalidUser = errors.New("invalid user name")

// Card is a card in a hand. Hash identifies the card across photos.
type Card struct {
	Hash      string               `yaml:"hash"`
	ImagePath string               `yaml:"image_path"`
	Record    *pipeline.ClueRecord `yaml:"record"`
}

// Hand is the ordered list of cards a player holds. Indices are the order
// the cards were added in.
type Hand struct {
	User  string `yaml:"-"`
	Cards []Card `yaml:"my_cards"`
}

// Add appends c to the hand, or replaces the card with the same hash in
// place. It reports whether a card was replaced.
func (h *Hand) Add(c Card) bool {
	for i := range h.Cards {
		if h.Cards[i].Hash == c.Hash {
			h.Cards[i] = c
			return true
		}
	}
	h.Cards = append(h.Cards, c)
	return false
}

// Remove drops the cards at indices. Repeated indices are removed once, an
// index outside the hand is an error and leaves the hand unchanged.
func (h *Hand) Remove(indices ...int) error {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(h.Cards) {
			return fmt.Errorf("card %d not in hand of %d", i, len(h.Cards))
		}
		drop[i] = true
	}

	kept := h.Cards[:0:0]
	for i, c := range h.Cards {
		if !drop[i] {
			kept = append(kept, c)
		}
	}
	h.Cards = kept
	return nil
}

// Records returns the stored clue records in hand order, suitable as the
// precomputed argument of pipeline.Guess.
func (h *Hand) Records() []*pipeline.ClueRecord {
	out := make([]*pipeline.ClueRecord, len(h.Cards))
	for i, c := range h.Cards {
		out[i] = c.Record
	}
	return out
}

func (h *Hand) ImagePaths() []string {
	out := make([]string, len(h.Cards))
	for i, c := range h.Cards {
		out[i] = c.ImagePath
	}
	return out
}

func (h *Hand) Len() int { return len(h.Cards) }

// Store reads and writes hands under a directory. It is safe for concurrent
// use within one process.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Path returns the file holding the hand of user.
func (s *Store) Path(user string) (string, error) {
	name, err := sanitize(user)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".yaml"), nil
}

// Load returns the hand of user, creating an empty hand file when there is
// none yet.
func (s *Store) Load(user string) (*Hand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(user)
}

// Save replaces the hand file of h.User with h.
func (s *Store) Save(h *Hand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(h)
}

// Reset empties the hand of user.
func (s *Store) Reset(user string) error {
	return s.Save(&Hand{User: user})
}

// Update loads the hand of user, applies fn and saves the result unless fn
// fails.
func (s *Store) Update(user string, fn func(*Hand) error) (*Hand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.load(user)
	if err != nil {
		return nil, err
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	if err := s.save(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Store) load(user string) (*Hand, error) {
	path, err := s.Path(user)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		h := &Hand{User: user}
		return h, s.save(h)
	}
	if err != nil {
		return nil, err
	}

	h := &Hand{}
	if err := yaml.Unmarshal(data, h); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	h.User = user
	return h, nil
}

// save writes a temporary file and renames it over the hand file.
func (s *Store) save(h *Hand) error {
	path, err := s.Path(h.User)
	if err != nil {
		return err
	}
	if h.Cards == nil {
		h.Cards = []Card{}
	}

	data, err := yaml.Marshal(h)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".hand-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// sanitize maps a user name to a file name, keeping letters, digits, dots,
// dashes and underscores.
func sanitize(user string) (string, error) {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(user))
	if strings.Trim(name, ".") == "" {
		return "", fmt.Errorf("%w %q", ErrInvalidUser, user)
	}
	return name, nil
}

// Users lists the players that have a hand file.
func (s *Store) Users() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var users []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok && !e.IsDir() && !strings.HasPrefix(name, ".") {
			users = append(users, name)
		}
	}
	slices.Sort(users)
	return users, nil
}
