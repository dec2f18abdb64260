package main

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/chriskillpack/dixit/cards"
)

// card is a card image ready for the pipeline.
type card struct {
	path string
	img  image.Image
	data []byte // encoded image sent to the model servers
	hash string
}

// loadCards reads the card images in photos. With a detections file there
// must be exactly one photo, of the table, and the detected cards are cut out
// of it and saved next to it.
func loadCards(photos []string, boxesPath string) ([]card, error) {
	if boxesPath == "" {
		out := make([]card, len(photos))
		for i, p := range photos {
			c, err := readCard(p)
			if err != nil {
				return nil, err
			}
			out[i] = *c
		}
		return out, nil
	}

	if len(photos) != 1 {
		return nil, fmt.Errorf("--boxes needs exactly one photo, got %d", len(photos))
	}
	f, err := os.Open(boxesPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	boxes, err := cards.ParseDetections(f)
	if err != nil {
		return nil, err
	}
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no cards detected in %s", boxesPath)
	}

	photo, err := cards.DecodeFile(photos[0])
	if err != nil {
		return nil, err
	}
	crops, err := cards.Crop(photo, boxes)
	if err != nil {
		return nil, err
	}

	// Cards are hashed as read back from disk so the hash matches a later
	// readCard of the same file.
	out := make([]card, len(crops))
	for i, img := range crops {
		path := cards.CardPath(photos[0], i, len(crops))
		if err := cards.SaveJPEG(path, img); err != nil {
			return nil, err
		}
		c, err := readCard(path)
		if err != nil {
			return nil, err
		}
		out[i] = *c
	}
	return out, nil
}

func readCard(path string) (*card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := cards.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	hash, err := cards.Hash(img)
	if err != nil {
		return nil, err
	}
	return &card{path: path, img: img, data: data, hash: hash}, nil
}

// gridJPEG lays the cards out in a numbered grid and encodes it.
func gridJPEG(cs []card) ([]byte, error) {
	imgs := make([]image.Image, len(cs))
	for i, c := range cs {
		imgs[i] = c.img
	}
	grid, err := cards.Grid(imgs, 0)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	if err := cards.EncodeJPEG(buf, grid); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func images(cs []card) [][]byte {
	out := make([][]byte, len(cs))
	for i, c := range cs {
		out[i] = c.data
	}
	return out
}
