package geo

import (
	"fmt"
	"time"

	"github.com/oschwald/geoip2-golang"
)

// Info describes a GeoIP database.
type Info struct {
	Type  string
	Built time.Time
}

// Inspect opens the database at path to confirm the nameserver will be able
// to use it, and reports what it contains.
func Inspect(path string) (Info, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening geoip database %s: %w", path, err)
	}
	defer db.Close()

	meta := db.Metadata()
	return Info{
		Type:  meta.DatabaseType,
		Built: time.Unix(int64(meta.BuildEpoch), 0).UTC(),
	}, nil
}
