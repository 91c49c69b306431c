package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// errNegativeDuration 超时、间隔类配置不接受负值
var errNegativeDuration = errors.New("duration must not be negative")

// Duration 配置中的时长
//
// JSON 中写成 "100ms"、"5s" 这样的字符串，或者写成整数毫秒（"reap_interval": 100）。
// 同时实现 flag.Value，命令行参数可以直接写入。
type Duration time.Duration

// parseDuration 解析时长字符串并拒绝负值
func parseDuration(s string) (Duration, error) {
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("duration %q: %w", s, errNegativeDuration)
	}
	return Duration(v), nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration: want a string like \"5s\" or integer milliseconds, got %s", data)
	}
	if ms < 0 {
		return fmt.Errorf("duration %dms: %w", ms, errNegativeDuration)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON 总是输出字符串形式
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Duration 返回 time.Duration
func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Set 实现 flag.Value
func (d *Duration) Set(s string) error {
	v, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
