package main

import (
	"encoding/json"
	"fmt"
	"os"

	"poolwager/internal/abi"
)

// ABICmd prints the build artifact a deployment tool consumes.
type ABICmd struct {
	Out      string `kong:"short='o',help='Write to this file instead of stdout'"`
	Selector string `kong:"short='s',help='Print only the entry for this 0x-prefixed selector'"`
}

func (c *ABICmd) Run() error {
	data, err := c.render()
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if c.Out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (c *ABICmd) render() ([]byte, error) {
	artifact := abi.Describe()
	if c.Selector == "" {
		return artifact.JSON()
	}
	entry, err := artifact.Lookup(c.Selector)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(entry, "", "  ")
}
