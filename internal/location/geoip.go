package location

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"lead-allocation/internal/models"
)

// GeoIP looks up approximate coordinates for client addresses in a
// MaxMind City database.
type GeoIP struct {
	db *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &GeoIP{db: db}, nil
}

func (g *GeoIP) Close() error { return g.db.Close() }

func (g *GeoIP) Lookup(ip net.IP) (models.GeoPoint, error) {
	if ip == nil {
		return models.GeoPoint{}, ErrUnavailable
	}
	rec, err := g.db.City(ip)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	// private and unknown ranges come back as 0,0
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return models.GeoPoint{}, ErrUnavailable
	}
	return models.GeoPoint{Latitude: rec.Location.Latitude, Longitude: rec.Location.Longitude}, nil
}

// ForIP binds the database to one client address.
func (g *GeoIP) ForIP(ip string) Provider {
	return ProviderFunc(func(ctx context.Context, _ Options) (models.GeoPoint, error) {
		if err := ctx.Err(); err != nil {
			return models.GeoPoint{}, err
		}
		return g.Lookup(net.ParseIP(ip))
	})
}
