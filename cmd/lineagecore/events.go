package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lineagecore/internal/core"
	"lineagecore/pkg/lineage"
	"strings"
)

const (
	eventFound  = "found"
	eventDivide = "divide"
)

// event is one JSON line of a simulator trace:
//
//	{"type":"found","cell":"0","time":0,"label":"r=0.3"}
//	{"type":"divide","mother":"0","daughters":["1","2"],"time":5}
type event struct {
	Type      string            `json:"type"`
	Cell      lineage.CellID    `json:"cell,omitempty"`
	Label     string            `json:"label,omitempty"`
	Mother    lineage.CellID    `json:"mother,omitempty"`
	Daughters [2]lineage.CellID `json:"daughters"`
	Time      float64           `json:"time"`
}

type replayStats struct {
	Lineages  int
	Divisions int
	Warnings  int
	LastTime  float64
	seenTime  bool
}

func (s *replayStats) advance(t float64) {
	if !s.seenTime || t > s.LastTime {
		s.LastTime, s.seenTime = t, true
	}
}

// replay feeds every event in r through the service. Blank lines and lines
// starting with '#' are skipped. The first failing event aborts the replay.
func replay(ctx context.Context, svc *core.Service, r io.Reader) (replayStats, error) {
	var stats replayStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var ev event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return stats, fmt.Errorf("line %d: decode event: %w", lineNo, err)
		}
		if err := apply(ctx, svc, ev, &stats); err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}

func apply(ctx context.Context, svc *core.Service, ev event, stats *replayStats) error {
	switch ev.Type {
	case eventFound:
		if ev.Cell == "" {
			return fmt.Errorf("found event requires a cell id")
		}
		if _, _, err := svc.CreateLabeledLineage(ctx, ev.Cell, ev.Time, ev.Label); err != nil {
			return err
		}
		stats.Lineages++
	case eventDivide:
		_, res, err := svc.ApplyDivision(ctx, core.DivisionEvent{Mother: ev.Mother, Daughters: ev.Daughters, Time: ev.Time})
		if err != nil {
			return err
		}
		stats.Divisions++
		stats.Warnings += len(res.Violations)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	stats.advance(ev.Time)
	return nil
}
