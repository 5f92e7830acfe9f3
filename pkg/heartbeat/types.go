package heartbeat

import (
	"fmt"
	"strings"
	"time"
)

// Environment partitions traffic so development noise stays out of
// production aggregates.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
)

// ParseEnvironment maps s onto a known environment. Empty or unrecognized
// values are treated as production.
func ParseEnvironment(s string) Environment {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case EnvDev:
		return EnvDev
	default:
		return EnvProd
	}
}

// UnknownVersion is recorded when a signal carries no application version.
const UnknownVersion = "unknown"

// NormalizeVersion trims v and substitutes UnknownVersion when empty.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return UnknownVersion
	}
	return v
}

// DateLayout is the wire and storage form of a Date.
const DateLayout = "2006-01-02"

// Date is a UTC calendar day in YYYY-MM-DD form. The zero value means
// "no date".
type Date string

// DateOf returns the UTC calendar day containing t.
func DateOf(t time.Time) Date {
	return Date(t.UTC().Format(DateLayout))
}

// ParseDate validates s as a YYYY-MM-DD day.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d == ""
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// AddDays returns the day n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	return string(d)
}

// DeviceHash is the 16 hex character anonymous device key.
type DeviceHash string

// DeviceHashLen is the length of a DeviceHash in characters.
const DeviceHashLen = 16

// Signal is the payload a client sends once per day.
type Signal struct {
	AppID       string
	DeviceHash  DeviceHash
	Environment Environment
	AppVersion  string
}

// Event is one immutable record in the server side log.
type Event struct {
	Date        Date        `json:"date"`
	DeviceHash  DeviceHash  `json:"device_hash"`
	AppID       string      `json:"app_id"`
	Environment Environment `json:"environment"`
	AppVersion  string      `json:"app_version"`
	ReceivedAt  time.Time   `json:"received_at"`
}

// DailyCount is the number of distinct devices seen on one day.
type DailyCount struct {
	Date    Date  `json:"date"`
	Devices int64 `json:"devices"`
}

// AppCount is the number of distinct devices seen for one application.
type AppCount struct {
	AppID   string `json:"app_id"`
	Devices int64  `json:"devices"`
}

// VersionCount is the number of distinct devices seen on one version.
type VersionCount struct {
	Version string `json:"version"`
	Devices int64  `json:"devices"`
}
