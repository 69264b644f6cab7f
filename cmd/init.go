package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"poolwager/internal/config"
)

// InitCmd writes the default configuration so it can be edited.
type InitCmd struct {
	Path  string `kong:"arg,optional,default='poolwager.yaml',help='Where to write the config'"`
	Force bool   `kong:"help='Overwrite an existing file'"`
}

func (c *InitCmd) Run() error {
	if !c.Force {
		if _, err := os.Stat(c.Path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.WriteFile(c.Path, []byte(config.DefaultYAML()), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", c.Path)
	return nil
}
