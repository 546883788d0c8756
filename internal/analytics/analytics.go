// Package analytics derives page view breakdowns from raw view rows.
package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"folio/internal/models"
)

const (
	// Window is how far back views are loaded for aggregation.
	Window = 90 * 24 * time.Hour
	// SeriesDays is the number of entries in the daily series.
	SeriesDays = 30

	dayLayout = "2006-01-02"
)

// Device buckets.
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
)

// Referrer buckets that are not hostnames.
const (
	ReferrerDirect  = "Direct"
	ReferrerUnknown = "Unknown"
)

var (
	tabletPatterns = []string{"ipad", "tablet", "playbook", "silk"}
	mobilePatterns = []string{"mobile", "iphone", "ipod", "android", "blackberry", "opera mini", "iemobile", "wpdesktop"}
)

// DayCount is one entry of the daily series.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// NamedCount is a labelled count in a breakdown.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary is the analytics view of one page.
type Summary struct {
	PageID      string       `json:"page_id"`
	TotalViews  int64        `json:"total_views"`
	WindowViews int          `json:"window_views"`
	Daily       []DayCount   `json:"daily"`
	Referrers   []NamedCount `json:"referrers"`
	Devices     []NamedCount `json:"devices"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// HashIP returns the lowercase hex SHA-256 of ip.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// ClassifyDevice buckets a user agent. Tablet patterns win over mobile ones,
// and Android without "mobile" is treated as a tablet.
func ClassifyDevice(userAgent string) string {
	ua := strings.ToLower(userAgent)
	for _, p := range tabletPatterns {
		if strings.Contains(ua, p) {
			return DeviceTablet
		}
	}
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobile") {
		return DeviceTablet
	}
	for _, p := range mobilePatterns {
		if strings.Contains(ua, p) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

// ReferrerDomain maps a referrer to its hostname without a leading "www.".
func ReferrerDomain(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return ReferrerDirect
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return ReferrerUnknown
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ReferrerUnknown
	}
	return strings.TrimPrefix(host, "www.")
}

// DailySeries returns SeriesDays entries ending on now's UTC date, oldest
// first. Timestamps outside the range are ignored.
func DailySeries(timestamps []time.Time, now time.Time) []DayCount {
	today := now.UTC().Truncate(24 * time.Hour)
	series := make([]DayCount, SeriesDays)
	index := make(map[string]int, SeriesDays)
	for i := 0; i < SeriesDays; i++ {
		day := today.AddDate(0, 0, i-(SeriesDays-1)).Format(dayLayout)
		series[i] = DayCount{Date: day}
		index[day] = i
	}
	for _, ts := range timestamps {
		if i, ok := index[ts.UTC().Format(dayLayout)]; ok {
			series[i].Count++
		}
	}
	return series
}

// ReferrerBreakdown counts referrers by domain, sorted by count descending
// then name ascending.
func ReferrerBreakdown(referrers []string) []NamedCount {
	counts := make(map[string]int)
	for _, r := range referrers {
		counts[ReferrerDomain(r)]++
	}
	out := make([]NamedCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, NamedCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DeviceBreakdown always returns Desktop, Mobile and Tablet in that order.
func DeviceBreakdown(userAgents []string) []NamedCount {
	counts := map[string]int{DeviceDesktop: 0, DeviceMobile: 0, DeviceTablet: 0}
	for _, ua := range userAgents {
		counts[ClassifyDevice(ua)]++
	}
	return []NamedCount{
		{Name: DeviceDesktop, Count: counts[DeviceDesktop]},
		{Name: DeviceMobile, Count: counts[DeviceMobile]},
		{Name: DeviceTablet, Count: counts[DeviceTablet]},
	}
}

// Summarize aggregates views loaded for page over Window.
func Summarize(page *models.Page, views []models.PageView, now time.Time) Summary {
	timestamps := make([]time.Time, len(views))
	referrers := make([]string, len(views))
	agents := make([]string, len(views))
	for i, v := range views {
		timestamps[i] = v.CreatedAt
		referrers[i] = v.Referrer
		agents[i] = v.UserAgent
	}

	daily := DailySeries(timestamps, now)
	windowViews := 0
	for _, d := range daily {
		windowViews += d.Count
	}

	s := Summary{
		TotalViews:  int64(len(views)),
		WindowViews: windowViews,
		Daily:       daily,
		Referrers:   ReferrerBreakdown(referrers),
		Devices:     DeviceBreakdown(agents),
		GeneratedAt: now.UTC(),
	}
	if page != nil {
		s.PageID = page.ID
		s.TotalViews = page.ViewCount
	}
	return s
}
