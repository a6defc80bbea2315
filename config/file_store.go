package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// FileStore is an in-memory Store backed by a file. Files ending in .yaml or
// .yml are read as a two-level YAML mapping, anything else as INI.
type FileStore struct {
	mu       sync.RWMutex
	sections map[string]map[string]string
}

func NewFileStore() *FileStore {
	return &FileStore{sections: make(map[string]map[string]string)}
}

func isYAML(file string) bool {
	ext := strings.ToLower(filepath.Ext(file))
	return ext == ".yaml" || ext == ".yml"
}

// Load merges the file's values into the store.
func (s *FileStore) Load(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var parsed map[string]map[string]string
	if isYAML(file) {
		parsed, err = parseYAML(data)
	} else {
		parsed, err = parseINI(data)
	}
	if err != nil {
		return fmt.Errorf("config: %s: %w", file, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for section, entries := range parsed {
		for entry, v := range entries {
			s.setLocked(section, entry, v)
		}
	}
	return nil
}

// Save writes every value to file, sections and entries sorted.
func (s *FileStore) Save(file string) error {
	s.mu.RLock()
	var (
		data []byte
		err  error
	)
	if isYAML(file) {
		data, err = yaml.Marshal(s.sections)
	} else {
		data = s.formatINI()
	}
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0o644)
}

func (s *FileStore) GetString(section, entry, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.sections[section][entry]; ok {
		return v
	}
	return def
}

func (s *FileStore) GetInt(section, entry string, def int) int {
	return atoiDefault(s.GetString(section, entry, ""), def)
}

func (s *FileStore) SetString(section, entry, value string) error {
	if section == "" || entry == "" {
		return fmt.Errorf("config: empty section or entry")
	}
	s.mu.Lock()
	s.setLocked(section, entry, value)
	s.mu.Unlock()
	return nil
}

func (s *FileStore) SetInt(section, entry string, value int) error {
	return s.SetString(section, entry, strconv.Itoa(value))
}

// Each calls fn for every value, sections and entries sorted.
func (s *FileStore) Each(fn func(section, entry, value string)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, section := range sortedKeys(s.sections) {
		for _, entry := range sortedKeys(s.sections[section]) {
			fn(section, entry, s.sections[section][entry])
		}
	}
}

func (s *FileStore) setLocked(section, entry, value string) {
	m, ok := s.sections[section]
	if !ok {
		m = make(map[string]string)
		s.sections[section] = m
	}
	m[entry] = value
}

func (s *FileStore) formatINI() []byte {
	var b bytes.Buffer
	for _, section := range sortedKeys(s.sections) {
		fmt.Fprintf(&b, "[%s]\n", section)
		for _, entry := range sortedKeys(s.sections[section]) {
			fmt.Fprintf(&b, "%s=%s\n", entry, s.sections[section][entry])
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func parseINI(data []byte) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string)
	section := ""
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}
		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated section header", n)
			}
			section = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %d: expected entry=value", n)
		}
		if section == "" {
			return nil, fmt.Errorf("line %d: entry outside a section", n)
		}
		if out[section] == nil {
			out[section] = make(map[string]string)
		}
		out[section][strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out, sc.Err()
}

func parseYAML(data []byte) (map[string]map[string]string, error) {
	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(raw))
	for section, entries := range raw {
		out[section] = make(map[string]string, len(entries))
		for entry, v := range entries {
			out[section][entry] = fmt.Sprint(v)
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
