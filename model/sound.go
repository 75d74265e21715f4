package model

import (
	"strings"
)

const (
	// DefaultName replaces a blank display name.
	DefaultName = "Untitled Sound"
	// DefaultVolume is used when a sound is created through POST /sounds.
	DefaultVolume = 70
	// IngestVolume is used for sounds produced by upload or remote import.
	IngestVolume = 80
	// AssetFormat is the codec tag of every normalized asset.
	AssetFormat = "mp3"
)

// Sound is one clip in the catalog. FilePath, FileFormat and Length describe
// the stored asset and are owned by the catalog; clients cannot set them.
type Sound struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Length     int64   `json:"length"` // normalized duration in ms
	Volume     int     `json:"volume"`
	Playing    bool    `json:"playing"`
	Effects    Effects `json:"effects"`
	TrimStart  int64   `json:"trim_start"`
	TrimEnd    int64   `json:"trim_end"`
	FilePath   string  `json:"file_path"`
	FileFormat string  `json:"file_format"`
	Color      string  `json:"color,omitempty"`
}

// ApplyDefaults trims the name, clamps volume and fills the trim window end.
func (s *Sound) ApplyDefaults() {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.Volume < 0 {
		s.Volume = 0
	} else if s.Volume > 100 {
		s.Volume = 100
	}
	if s.Length < 0 {
		s.Length = 0
	}
	if s.TrimStart < 0 {
		s.TrimStart = 0
	}
	if s.TrimEnd <= 0 {
		s.TrimEnd = s.Length
	}
}

// Clone returns a copy that shares nothing with s.
func (s *Sound) Clone() *Sound {
	c := *s
	return &c
}

// CatalogVersion is the current on-disk schema version.
const CatalogVersion = 2

// Catalog is the on-disk envelope of the sound catalog. Version 1 files were a
// bare JSON array of sounds.
type Catalog struct {
	Version  int      `json:"version"`
	Revision int64    `json:"revision"`
	Sounds   []*Sound `json:"sounds"`
}

// Find returns the index of the sound with id, or -1.
func (c *Catalog) Find(id string) int {
	for i, s := range c.Sounds {
		if s.ID == id {
			return i
		}
	}
	return -1
}
