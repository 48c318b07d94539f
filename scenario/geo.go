package scenario

import (
	"context"
	"sort"

	"github.com/unkn0wn-root/cascheck"
)

var cities = map[string]cascheck.Position{
	"Sydney":     {Lat: -33.8688, Lon: 151.2093},
	"Melbourne":  {Lat: -37.8136, Lon: 144.9631},
	"Brisbane":   {Lat: -27.4698, Lon: 153.0251},
	"Perth":      {Lat: -31.9505, Lon: 115.8605},
	"Adelaide":   {Lat: -34.9285, Lon: 138.6007},
	"Gold Coast": {Lat: -28.0167, Lon: 153.4000},
	"Canberra":   {Lat: -35.2809, Lon: 149.1300},
	"Newcastle":  {Lat: -32.9267, Lon: 151.7765},
	"Hobart":     {Lat: -42.8821, Lon: 147.3272},
}

// runGeo settles once on the first pair, then checks every other pair
// without waiting again.
func runGeo(ctx context.Context, env *Env, t *T) error {
	k := env.Key("cities")
	names := make([]string, 0, len(cities))
	for n := range cities {
		names = append(names, n)
	}
	sort.Strings(names)

	implied := cascheck.GeoValue(cities)
	first := true
	for i := range names {
		for _, b := range names[i+1:] {
			read := cascheck.GeoDist(k, names[i], b)
			if first {
				first = false
				if err := t.Expect(env.Verifier.Verify(ctx, cascheck.GeoAdd(k, cities), read, env.Settle)); err != nil {
					return err
				}
				continue
			}
			if err := t.Expect(env.Verifier.Check(ctx, read.Expect(implied), read, cascheck.NoSettle)); err != nil {
				return err
			}
		}
	}
	return nil
}
