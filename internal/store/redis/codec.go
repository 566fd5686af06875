package redis

import (
	"fmt"
	"strconv"

	"ohlcchart/internal/model"
)

const (
	streamPrefix  = "chart:candles:"
	formingPrefix = "chart:forming:"
)

// StreamKey is the Redis stream holding closed candles for symbol.
func StreamKey(symbol string) string { return streamPrefix + symbol }

// FormingChannel is the Pub/Sub channel carrying forming-candle updates.
func FormingChannel(symbol string) string { return formingPrefix + symbol }

// encodeValues flattens a candle into XADD field values.
func encodeValues(c model.Candle) map[string]interface{} {
	return map[string]interface{}{
		"time":  c.Time,
		"open":  c.Open,
		"high":  c.High,
		"low":   c.Low,
		"close": c.Close,
	}
}

// decodeValues rebuilds a candle from an XMessage's values. go-redis returns
// field values as strings.
func decodeValues(v map[string]interface{}) (model.Candle, error) {
	var c model.Candle
	var err error
	if c.Time, err = intField(v, "time"); err != nil {
		return c, err
	}
	if c.Open, err = floatField(v, "open"); err != nil {
		return c, err
	}
	if c.High, err = floatField(v, "high"); err != nil {
		return c, err
	}
	if c.Low, err = floatField(v, "low"); err != nil {
		return c, err
	}
	if c.Close, err = floatField(v, "close"); err != nil {
		return c, err
	}
	return c, nil
}

func rawField(v map[string]interface{}, key string) (string, error) {
	raw, ok := v[key]
	if !ok {
		return "", fmt.Errorf("stream entry missing %q", key)
	}
	switch x := raw.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return fmt.Sprint(x), nil
	}
}

func intField(v map[string]interface{}, key string) (int64, error) {
	s, err := rawField(v, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stream field %q: %w", key, err)
	}
	return n, nil
}

func floatField(v map[string]interface{}, key string) (float64, error) {
	s, err := rawField(v, key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("stream field %q: %w", key, err)
	}
	return f, nil
}
