package sync

import (
	"bytes"
	"embed"
	"io"
	"io/fs"
	"os"
	"path"
)

//go:embed mappings/*.yaml
var embeddedMappingFiles embed.FS

// EmbeddedDefaults holds the settings and mapping table compiled into the binary.
var EmbeddedDefaults = EmbeddedMappings{Root: "mappings", Files: embeddedMappingFiles}

type MappingFile struct {
	Name   string
	Reader io.Reader
	Length int
}

type EmbeddedMappings struct {
	Root  string
	Files EmbeddedFS
}

type EmbeddedFS interface {
	Open(name string) (fs.File, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

func (em EmbeddedMappings) MustFindRootMappingFile(filename string) (MappingFile, error) {
	name := path.Join(em.Root, filename)
	b, err := em.Files.ReadFile(name)
	if err != nil {
		return MappingFile{}, err
	}
	return NewMappingFile(name, b), nil
}

func (em EmbeddedMappings) MustFindDefaultsMappingFile() (MappingFile, error) {
	return em.MustFindRootMappingFile("defaults.yaml")
}

func (em EmbeddedMappings) MustFindOrderMappingFile() (MappingFile, error) {
	return em.MustFindRootMappingFile("mappings.yaml")
}

func NewMappingFile(name string, b []byte) MappingFile {
	return MappingFile{Name: name, Reader: bytes.NewReader(b), Length: len(b)}
}

// MappingFileFromPath reads an override file from disk.
func MappingFileFromPath(p string) (MappingFile, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return MappingFile{}, err
	}
	return NewMappingFile(p, b), nil
}
