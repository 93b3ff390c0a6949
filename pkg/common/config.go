package common

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds the recognized simulator settings, see LoadConfig for the property names
type Config struct {
	InitialCash       decimal.Decimal
	MinVolume         int64
	MinOpenInterest   int64
	Debounce          time.Duration
	GridWidth         float64
	GridPoints        int
	CurveCacheSize    int
	RiskFreeRate      float64
	DefaultVolatility float64
	QuotesFile        string
	ReportFile        string
	LogLevel          string
}

func DefaultConfig() Config {
	return Config{
		InitialCash:       decimal.NewFromInt(100000),
		MinVolume:         10,
		MinOpenInterest:   50,
		Debounce:          150 * time.Millisecond,
		GridWidth:         50,
		GridPoints:        100,
		CurveCacheSize:    256,
		RiskFreeRate:      0.05,
		DefaultVolatility: 0.20,
		LogLevel:          "info",
	}
}

// LoadConfig reads the settings from props, missing keys keep their defaults
func LoadConfig(props Properties) (Config, error) {
	c := DefaultConfig()
	var err error

	if c.InitialCash, err = props.GetDecimal("initial_cash", c.InitialCash); err != nil {
		return c, err
	}
	if c.MinVolume, err = props.GetInt("min_volume", c.MinVolume); err != nil {
		return c, err
	}
	if c.MinOpenInterest, err = props.GetInt("min_open_interest", c.MinOpenInterest); err != nil {
		return c, err
	}
	ms, err := props.GetInt("debounce_ms", c.Debounce.Milliseconds())
	if err != nil {
		return c, err
	}
	c.Debounce = time.Duration(ms) * time.Millisecond
	if c.GridWidth, err = props.GetFloat("grid_width", c.GridWidth); err != nil {
		return c, err
	}
	points, err := props.GetInt("grid_points", int64(c.GridPoints))
	if err != nil {
		return c, err
	}
	if points < 2 {
		return c, errors.Wrapf(InvalidProperty, "grid_points=%d", points)
	}
	c.GridPoints = int(points)
	size, err := props.GetInt("curve_cache_size", int64(c.CurveCacheSize))
	if err != nil {
		return c, err
	}
	if size < 1 {
		return c, errors.Wrapf(InvalidProperty, "curve_cache_size=%d", size)
	}
	c.CurveCacheSize = int(size)
	if c.RiskFreeRate, err = props.GetFloat("risk_free_rate", c.RiskFreeRate); err != nil {
		return c, err
	}
	if c.DefaultVolatility, err = props.GetFloat("default_volatility", c.DefaultVolatility); err != nil {
		return c, err
	}
	c.QuotesFile = props.GetString("quotes_file", c.QuotesFile)
	c.ReportFile = props.GetString("report_file", c.ReportFile)
	c.LogLevel = props.GetString("log_level", c.LogLevel)
	return c, nil
}
