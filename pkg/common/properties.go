package common

import (
	"bufio"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Properties are name=value settings read from a simple file format. Lines starting with # or // are
// comments, lines without an = are ignored, and there is no escaping.
type Properties interface {
	GetString(key string, def string) string
	SetString(key string, value string)
	// GetInt, GetFloat and GetDecimal return def when the key is missing or empty, and InvalidProperty
	// when the value does not parse. Negative integers and decimals are invalid too.
	GetInt(key string, def int64) (int64, error)
	GetFloat(key string, def float64) (float64, error)
	GetDecimal(key string, def decimal.Decimal) (decimal.Decimal, error)
	Keys() []string
	Clone() Properties
}

type propertyMap map[string]string

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (p propertyMap) GetString(key string, def string) string {
	if v, ok := p[normalizeKey(key)]; ok {
		return v
	}
	return def
}

func (p propertyMap) SetString(key string, value string) {
	p[normalizeKey(key)] = strings.TrimSpace(value)
}

func (p propertyMap) lookup(key string) (string, bool) {
	v := p.GetString(key, "")
	return v, v != ""
}

func (p propertyMap) GetInt(key string, def int64) (int64, error) {
	s, ok := p.lookup(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return def, errors.Wrapf(InvalidProperty, "%s=%s", key, s)
	}
	return v, nil
}

func (p propertyMap) GetFloat(key string, def float64) (float64, error) {
	s, ok := p.lookup(key)
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def, errors.Wrapf(InvalidProperty, "%s=%s", key, s)
	}
	return v, nil
}

func (p propertyMap) GetDecimal(key string, def decimal.Decimal) (decimal.Decimal, error) {
	s, ok := p.lookup(key)
	if !ok {
		return def, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil || v.IsNegative() {
		return def, errors.Wrapf(InvalidProperty, "%s=%s", key, s)
	}
	return v, nil
}

func (p propertyMap) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (p propertyMap) Clone() Properties {
	return maps.Clone(p)
}

func EmptyProperties() Properties {
	return propertyMap{}
}

func NewProperties(file string) (Properties, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open properties")
	}
	defer f.Close()

	p, err := NewPropertiesFromReader(f)
	return p, errors.Wrapf(err, "reading %s", file)
}

func NewPropertiesFromReader(r io.Reader) (Properties, error) {
	p := propertyMap{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if name, value, ok := strings.Cut(line, "="); ok {
			p.SetString(name, value)
		}
	}
	return p, scanner.Err()
}

// OverlayEnv copies environment entries of the form PREFIX_NAME=value into p as name, so that
// OPTSIM_INITIAL_CASH=5000 overrides initial_cash. It returns the keys that were set.
func OverlayEnv(p Properties, environ []string, prefix string) []string {
	prefix = strings.ToUpper(prefix) + "_"
	var set []string
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			continue
		}
		key := normalizeKey(name[len(prefix):])
		p.SetString(key, value)
		set = append(set, key)
	}
	return set
}
