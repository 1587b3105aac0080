// Package crs identifies coordinate reference systems from shapefile .prj sidecars and
// reprojects boundary geometries to geographic WGS 84 coordinates.
package crs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth/internal/model"
)

var known = map[int]model.CRS{
	model.WGS84.EPSG:               model.WGS84,
	model.OSGB36.EPSG:              model.OSGB36,
	model.BritishNationalGrid.EPSG: model.BritishNationalGrid,
	model.WebMercator.EPSG:         model.WebMercator,
	900913:                         model.WebMercator,
	3785:                           model.WebMercator,
}

// Name fragments used by ESRI-flavoured .prj files, which usually omit AUTHORITY.
var knownNames = []struct {
	fragment string
	crs      model.CRS
}{
	{"british_national_grid", model.BritishNationalGrid},
	{"pseudo_mercator", model.WebMercator},
	{"pseudo-mercator", model.WebMercator},
	{"web_mercator", model.WebMercator},
	{"gcs_osgb_1936", model.OSGB36},
	{"gcs_wgs_1984", model.WGS84},
	{"wgs 84", model.WGS84},
	{"wgs_84", model.WGS84},
}

var (
	nameRe      = regexp.MustCompile(`^\s*([A-Z]+)\s*\[\s*"([^"]*)"`)
	authorityRe = regexp.MustCompile(`(?i)(?:AUTHORITY|ID)\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
)

// FromEPSG returns the CRS for a supported EPSG code.
func FromEPSG(code int) (model.CRS, error) {
	c, ok := known[code]
	if !ok {
		return model.CRS{}, eris.Errorf("crs: unsupported EPSG code %d", code)
	}
	return c, nil
}

// ParseCode accepts "EPSG:27700" or a bare "27700".
func ParseCode(s string) (model.CRS, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToUpper(s), "EPSG:")
	code, err := strconv.Atoi(s)
	if err != nil {
		return model.CRS{}, eris.Wrapf(err, "crs: parse code %q", s)
	}
	return FromEPSG(code)
}

// ParseWKT identifies the CRS described by WKT1 (or ESRI WKT) text as found in a .prj file.
// The top-level keyword decides whether the system is geographic; the outermost EPSG
// authority, or failing that a recognised name, decides which system it is.
func ParseWKT(wkt string) (model.CRS, error) {
	m := nameRe.FindStringSubmatch(wkt)
	if m == nil {
		return model.CRS{}, eris.New("crs: unrecognised WKT")
	}

	keyword, name := m[1], m[2]
	var geographic bool
	switch keyword {
	case "GEOGCS", "GEOGCRS", "GEODCRS":
		geographic = true
	case "PROJCS", "PROJCRS":
		geographic = false
	default:
		return model.CRS{}, eris.Errorf("crs: unsupported WKT root %s", keyword)
	}

	// The outermost authority closes the root node, so it is the last one in the text.
	if all := authorityRe.FindAllStringSubmatch(wkt, -1); len(all) > 0 {
		code, _ := strconv.Atoi(all[len(all)-1][1])
		if c, ok := known[code]; ok && c.Geographic == geographic {
			return c, nil
		}
	}

	lower := strings.ToLower(name)
	for _, kn := range knownNames {
		if strings.Contains(lower, kn.fragment) && kn.crs.Geographic == geographic {
			return kn.crs, nil
		}
	}

	return model.CRS{Name: name, Geographic: geographic}, nil
}
