package geoip

import (
	"log/slog"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Location is the coarse position recorded with a video view.
type Location struct {
	Country string
	City    string
}

// Resolver looks up client IPs in a MaxMind City database. The zero value
// resolves every address to an empty Location.
type Resolver struct {
	db *maxminddb.Reader
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// Open loads the database at path. A missing or unreadable file disables
// lookups instead of failing startup.
func Open(path string) *Resolver {
	if path == "" {
		return &Resolver{}
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		slog.Warn("geoip: database unavailable, view locations disabled", "path", path, "error", err)
		return &Resolver{}
	}
	slog.Info("geoip: loaded database", "path", path, "type", db.Metadata.DatabaseType)
	return &Resolver{db: db}
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

func (r *Resolver) Lookup(addr string) Location {
	if !r.Enabled() {
		return Location{}
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return Location{}
	}
	var rec cityRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		slog.Debug("geoip: lookup failed", "error", err)
		return Location{}
	}
	return Location{Country: rec.Country.ISOCode, City: rec.City.Names["en"]}
}

func (r *Resolver) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.db.Close()
}
