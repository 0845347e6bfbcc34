package source

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

// File reads GSLB configurations from a YAML document on every List call:
//
//	gslbconfigs:
//	  - domain: example.com
//	    nameservers: [ns1.example.com]
//	    records:
//	      - name: www
//	        targets:
//	          - address: 192.0.2.10
//	            location: eu
type File struct {
	Path string
}

type fileDocument struct {
	Configs []Entry `yaml:"gslbconfigs"`
}

func NewFile(path string) *File {
	return &File{Path: path}
}

func (f *File) List(ctx context.Context) ([]model.DomainConfig, error) {
	buf, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	return Merge(doc.Configs), nil
}
