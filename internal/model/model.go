package model

import (
	"fmt"
	"time"
)

type Crop string

const (
	CropSoy    Crop = "Soy"
	CropCorn   Crop = "Corn"
	CropCotton Crop = "Cotton"
)

func Crops() []Crop {
	return []Crop{CropSoy, CropCorn, CropCotton}
}

type Activity string

const (
	ActivityPlanting          Activity = "Planting"
	ActivityHarvest           Activity = "Harvest"
	ActivityCommercialization Activity = "Commercialization"
)

func Activities() []Activity {
	return []Activity{ActivityPlanting, ActivityHarvest, ActivityCommercialization}
}

// Indicator identifies one remote crop-progress time series.
type Indicator struct {
	ID       string
	Name     string
	Crop     Crop
	Activity Activity
}

// Indicators returns the static table of the nine IMEA series the extractor
// covers, one per crop and activity.
func Indicators() []Indicator {
	return []Indicator{
		{ID: "708192508889268224", Name: "Soy Planting", Crop: CropSoy, Activity: ActivityPlanting},
		{ID: "708192508847325188", Name: "Soy Harvest", Crop: CropSoy, Activity: ActivityHarvest},
		{ID: "702389895595556864", Name: "Soy Commercialization", Crop: CropSoy, Activity: ActivityCommercialization},
		{ID: "701211800784076800", Name: "Corn Planting", Crop: CropCorn, Activity: ActivityPlanting},
		{ID: "708192508847325187", Name: "Corn Harvesting", Crop: CropCorn, Activity: ActivityHarvest},
		{ID: "698758563422273536", Name: "Corn Commercialization", Crop: CropCorn, Activity: ActivityCommercialization},
		{ID: "705576963633053696", Name: "Cotton Planting", Crop: CropCotton, Activity: ActivityPlanting},
		{ID: "703492383711166464", Name: "Cotton Harvesting", Crop: CropCotton, Activity: ActivityHarvest},
		{ID: "703126874901708800", Name: "Cotton Commercialization", Crop: CropCotton, Activity: ActivityCommercialization},
	}
}

// StateName maps an IMEA state id to its display name. The extractor only
// covers Mato Grosso, which is also the fallback when the record carries no
// state field.
func StateName(id string) string {
	switch id {
	case "51", "":
		return "Mato Grosso"
	default:
		return fmt.Sprintf("State %s", id)
	}
}

// ChainID returns the legacy price-chain id for a crop.
func ChainID(crop Crop) string {
	switch crop {
	case CropCotton:
		return "1"
	case CropCorn:
		return "3"
	case CropSoy:
		return "4"
	default:
		return ""
	}
}

// Task describes one fetch against the historical-series endpoint: a single
// indicator bounded to a single calendar month. Tasks are immutable once
// planned.
type Task struct {
	Indicator Indicator
	Year      int
	Month     time.Month
	Start     time.Time
	End       time.Time
}

func (t Task) Label() string {
	return fmt.Sprintf("%04d-%02d %s %s", t.Year, int(t.Month), t.Indicator.Crop, t.Indicator.Activity)
}

// Season is a harvest-season entry from the general-series endpoint.
type Season struct {
	ID   string
	Name string
}

// Key is the deduplication key: two rows sharing it are the same observation.
type Key struct {
	Date     string
	Crop     Crop
	Activity Activity
	State    string
	Season   string
}

// Row is one normalized crop-progress observation.
type Row struct {
	Date       time.Time
	Year       int
	Month      int
	Crop       Crop
	Activity   Activity
	State      string
	Season     string
	Percentage float64
}

func (r Row) Key() Key {
	return Key{
		Date:     r.Date.Format("2006-01-02"),
		Crop:     r.Crop,
		Activity: r.Activity,
		State:    r.State,
		Season:   r.Season,
	}
}

// Quote is one current-price record from the mobile quotes endpoint.
type Quote struct {
	Chain       Crop
	Locality    string
	Season      string
	Value       float64
	Variation   float64
	Unit        string
	PublishedAt time.Time
}
