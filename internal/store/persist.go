// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// PersistentPeriod is how often persistent values are flushed to disk.
const PersistentPeriod = 60 * time.Second

// Persistence loads/saves persistent values for a Store to a single
// "name=value\n" file, the same grammar the wire protocol uses. A
// sibling ".bak" is kept and used as a fallback if the primary file is
// missing or corrupt, matching the original's load-then-backup dance.
type Persistence struct {
	store *Store
	path  string

	// lastWritten is the snapshot body most recently flushed; the
	// periodic loop skips the rewrite when nothing changed.
	lastWritten string
}

// NewPersistence binds a persistence snapshot file to a store.
func NewPersistence(s *Store, path string) *Persistence {
	return &Persistence{store: s, path: path}
}

// Load reads persisted values and applies them to already-registered
// persistent values, falling back to path+".bak" if the primary file
// cannot be read.
func (p *Persistence) Load() error {
	data, err := p.loadFileOrBackup()
	if err != nil {
		return err
	}
	for name, raw := range data {
		v := p.store.Lookup(name)
		if v == nil || !v.Persistent() {
			continue
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			log.Printf("store: persisted value %q is corrupt: %v", name, err)
			continue
		}
		v.Set(parsed)
	}
	return nil
}

func (p *Persistence) loadFileOrBackup() (map[string]string, error) {
	data, err := parsePersistFile(p.path)
	if err == nil {
		p.writeBackup(data)
		return data, nil
	}
	log.Printf("store: load persistent data failed (%v), trying backup", err)
	data, backupErr := parsePersistFile(p.path + ".bak")
	if backupErr != nil {
		return nil, fmt.Errorf("backup data failed as well: %w", backupErr)
	}
	return data, nil
}

func parsePersistFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		out[line[:eq]] = line[eq+1:]
	}
	return out, scanner.Err()
}

func (p *Persistence) writeBackup(data map[string]string) {
	tmp := p.path + ".bak.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		log.Printf("store: failed to write backup %s: %v", p.path+".bak", err)
		return
	}
	for name, raw := range data {
		fmt.Fprintf(f, "%s=%s\n", name, raw)
	}
	f.Close()
	os.Rename(tmp, p.path+".bak")
}

// snapshot renders every persistent value in the "name=value\n" file
// grammar.
func (p *Persistence) snapshot() string {
	var b strings.Builder
	for _, name := range p.store.Names() {
		v := p.store.Lookup(name)
		if v == nil || !v.Persistent() {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", name, v.Msg())
	}
	return b.String()
}

// Store writes every persistent value to path, via a temp file renamed
// into place, so a crash mid-write never corrupts the snapshot.
func (p *Persistence) Store() error {
	data := p.snapshot()
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("store: failed to write %s: %w", p.path, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return err
	}
	p.lastWritten = data
	return nil
}

// Run snapshots persistent values every PersistentPeriod until ctx is
// canceled, rewriting only when some payload changed since the last
// flush and logging but not failing on write errors, matching the
// original's best-effort store() loop.
func (p *Persistence) Run(ctx context.Context) {
	ticker := time.NewTicker(PersistentPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.snapshot() == p.lastWritten {
				continue
			}
			if err := p.Store(); err != nil {
				log.Printf("store: periodic persist failed: %v", err)
			}
		}
	}
}
