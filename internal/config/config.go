// Package config loads the node directory and adjacency configuration:
// a line-oriented file read once at startup.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// NodeDescriptor is one entry of the global node directory. Immutable
// after load.
type NodeDescriptor struct {
	ID   uint32
	IP   string
	Port uint32
}

// Config is the parsed configuration for one node: the default
// time-to-refresh for pull-mode entries, the directory of every node in
// the overlay, and this node's configured neighbor ids.
type Config struct {
	DefaultTTR uint32
	Nodes      map[uint32]NodeDescriptor
	Neighbors  []uint32
}

// Load reads and parses the configuration file at path for the given
// local node id. It does not dial anything; it only builds the directory
// and the neighbor list for myID.
func Load(path string, myID uint32) (*Config, error) {
	if err := checkPermissions(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := parse(f, myID)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// checkPermissions warns (by failing) if the config file is group- or
// world-readable. The overlay's full node directory — every peer's IP
// and port — is sensitive topology information.
func checkPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // let the caller's Open surface the real error
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		return fmt.Errorf("%w: %s has mode %04o; expected 0600 (chmod 600 %s)",
			ErrInsecurePermissions, path, mode, path)
	}
	return nil
}

func parse(r io.Reader, myID uint32) (*Config, error) {
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: missing defaultTtr line", ErrMalformed)
	}
	ttr, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: defaultTtr: %v", ErrMalformed, err)
	}

	cfg := &Config{
		DefaultTTR: uint32(ttr),
		Nodes:      make(map[uint32]NodeDescriptor),
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "-1" {
			break
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: directory line %q: want \"id ip port\"", ErrMalformed, line)
		}
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: directory id %q: %v", ErrMalformed, fields[0], err)
		}
		port, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: directory port %q: %v", ErrMalformed, fields[2], err)
		}
		cfg.Nodes[uint32(id)] = NodeDescriptor{ID: uint32(id), IP: fields[1], Port: uint32(port)}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: adjacency id %q: %v", ErrMalformed, fields[0], err)
		}
		if uint32(id) != myID {
			continue
		}
		for _, peerStr := range fields[1:] {
			peerID, err := strconv.ParseUint(peerStr, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: adjacency peer %q: %v", ErrMalformed, peerStr, err)
			}
			if _, ok := cfg.Nodes[uint32(peerID)]; !ok {
				return nil, fmt.Errorf("%w: neighbor %d is not in the node directory", ErrMalformed, peerID)
			}
			cfg.Neighbors = append(cfg.Neighbors, uint32(peerID))
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if _, ok := cfg.Nodes[myID]; !ok {
		return nil, fmt.Errorf("%w: this node's id %d is not in the node directory", ErrMalformed, myID)
	}
	return cfg, nil
}

// Self returns the NodeDescriptor for myID.
func (c *Config) Self(myID uint32) NodeDescriptor {
	return c.Nodes[myID]
}
