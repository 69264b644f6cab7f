package main

import (
	"context"
	"fmt"
	"os"

	"poolwager/internal/harness"
)

// ScenarioCmd runs scenario files, or every *.yaml file in a directory.
type ScenarioCmd struct {
	Paths []string `arg:"" name:"path" help:"Scenario files or directories"`
}

func (c *ScenarioCmd) Run() error {
	var scenarios []*harness.Scenario
	for _, p := range c.Paths {
		info, err := os.Stat(p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			loaded, err := harness.LoadDir(p)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, loaded...)
			continue
		}
		s, err := harness.Load(p)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, s)
	}

	failed := 0
	for _, s := range scenarios {
		if _, err := harness.Run(context.Background(), s); err != nil {
			failed++
			fmt.Printf("FAIL %s\n     %v\n", s.Name, err)
			continue
		}
		fmt.Printf("ok   %s\n", s.Name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}
