package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Sources maps a store id to the aggregator pages scraped for it.
type Sources map[string][]string

// URLs returns the configured pages for storeID.
func (s Sources) URLs(storeID string) []string {
	return s[storeID]
}

// StoreIDs returns the configured store ids in sorted order.
func (s Sources) StoreIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sourcesFile is the on-disk layout of a sources YAML file.
type sourcesFile struct {
	Stores map[string][]string `yaml:"stores"`
}

// LoadSources reads a sources file. A missing file yields DefaultSources.
func LoadSources(path string) (Sources, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("pipeline: sources file not found, using built-in list", zap.String("path", path))
		return DefaultSources(), nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read sources %s", path)
	}
	return ParseSources(data)
}

// ParseSources decodes sources YAML. Stores with no URLs are dropped.
func ParseSources(data []byte) (Sources, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse sources")
	}
	out := make(Sources, len(f.Stores))
	for id, urls := range f.Stores {
		if len(urls) > 0 {
			out[id] = urls
		}
	}
	return out, nil
}

// DefaultSources returns a copy of the built-in Norwegian aggregator pages.
func DefaultSources() Sources {
	out := make(Sources, len(defaultSources))
	for id, urls := range defaultSources {
		out[id] = append([]string(nil), urls...)
	}
	return out
}

var defaultSources = map[string][]string{
	// Barn & baby
	"jollyroom": {
		"https://www.cuponation.no/jollyroom-rabattkode",
		"https://kickback.no/rabattkode/jollyroom",
	},
	"elefun": {
		"https://www.cuponation.no/elefun-rabattkoder",
		"https://kickback.no/rabattkode/elefun",
	},
	"lekekassen": {
		"https://kickback.no/rabattkode/lekekassen",
	},
	"wee": {
		"https://kickback.no/rabattkode/wee",
	},

	// Helse & skjønnhet
	"blivakker": {
		"https://www.cuponation.no/blivakker-rabattkoder",
		"https://kickback.no/rabattkode/blivakker",
	},
	"lyko": {
		"https://www.cuponation.no/lyko-rabattkoder",
		"https://kickback.no/rabattkode/lyko",
	},
	"vita": {
		"https://www.cuponation.no/vita-rabattkoder",
		"https://kickback.no/rabattkode/vita",
	},
	"sephora": {
		"https://www.cuponation.no/sephora-rabattkoder",
		"https://kickback.no/rabattkode/sephora",
	},
	"farmasiet": {
		"https://www.cuponation.no/farmasiet",
		"https://kickback.no/rabattkode/farmasiet",
	},
	"apotek1": {
		"https://www.cuponation.no/apotek1-rabattkoder",
		"https://kickback.no/rabattkode/apotek1",
	},
	"staypro": {
		"https://www.cuponation.no/staypro-rabattkoder",
		"https://kickback.no/rabattkode/staypro",
	},
	"blush": {
		"https://www.cuponation.no/blush-rabattkoder",
		"https://kickback.no/rabattkode/blush",
	},
	"kondomeriet": {
		"https://www.cuponation.no/kondomeriet-rabattkoder",
		"https://kickback.no/rabattkode/kondomeriet",
	},

	// Sport & friluft
	"fjellsport": {
		"https://www.cuponation.no/fjellsport-rabattkoder",
		"https://kickback.no/rabattkode/fjellsport",
	},
	"getinspired": {
		"https://kickback.no/rabattkode/get-inspired",
	},
	"xxl": {
		"https://www.cuponation.no/xxl-rabattkoder",
		"https://kickback.no/rabattkode/xxl",
	},
	"gymshark": {
		"https://www.cuponation.no/gymshark-rabattkoder",
		"https://kickback.no/rabattkode/gymshark",
	},
	"hellyhansen": {
		"https://www.cuponation.no/helly-hansen-rabattkoder",
		"https://kickback.no/rabattkode/helly-hansen",
	},

	// Klær & sko
	"zalando": {
		"https://www.cuponation.no/zalando-rabattkoder",
		"https://kickback.no/rabattkode/zalando",
	},
	"boozt": {
		"https://www.cuponation.no/boozt-rabattkoder",
		"https://kickback.no/rabattkode/boozt",
	},
	"nelly": {
		"https://www.cuponation.no/nelly-rabattkoder",
		"https://kickback.no/rabattkode/nelly",
	},
	"hm": {
		"https://www.cuponation.no/hm-rabattkoder",
	},
	"ellos": {
		"https://www.cuponation.no/ellos-rabattkoder",
		"https://kickback.no/rabattkode/ellos",
	},
	"nakd": {
		"https://www.cuponation.no/nakd-rabattkoder",
		"https://kickback.no/rabattkode/nakd",
	},
	"shein": {
		"https://www.cuponation.no/shein",
		"https://kickback.no/rabattkode/shein",
	},

	// Elektronikk
	"elkjop": {
		"https://www.cuponation.no/elkjop-rabattkoder",
		"https://kickback.no/rabattkode/elkjop",
	},
	"komplett": {
		"https://www.cuponation.no/komplett-rabattkoder",
		"https://kickback.no/rabattkode/komplett",
	},
	"power": {
		"https://www.cuponation.no/power-rabattkoder",
		"https://kickback.no/rabattkode/power",
	},
	"proshop": {
		"https://www.cuponation.no/proshop-rabattkoder",
		"https://kickback.no/rabattkode/proshop",
	},
	"dustin": {
		"https://kickback.no/rabattkode/dustin-home",
	},
	"mytrendyphone": {
		"https://kickback.no/rabattkode/mytrendyphone",
	},
	"netonnet": {
		"https://www.cuponation.no/netonnet-rabattkoder",
		"https://kickback.no/rabattkode/netonnet",
	},
	"samsung": {
		"https://www.cuponation.no/samsung-rabattkoder",
		"https://kickback.no/rabattkode/samsung",
	},
	"dyson": {
		"https://www.cuponation.no/dyson-rabattkoder",
		"https://kickback.no/rabattkode/dyson",
	},

	// Hjem & hage
	"ikea": {
		"https://www.cuponation.no/ikea-rabattkoder",
	},
	"clasohlson": {
		"https://www.cuponation.no/clas-ohlson-rabattkoder",
		"https://kickback.no/rabattkode/clas-ohlson",
	},
	"jula": {
		"https://www.cuponation.no/jula-rabattkoder",
		"https://kickback.no/rabattkode/jula",
	},
	"plantasjen": {
		"https://www.cuponation.no/plantasjen-rabattkoder",
		"https://kickback.no/rabattkode/plantasjen",
	},
	"byggmax": {
		"https://www.cuponation.no/byggmax-rabattkoder",
		"https://kickback.no/rabattkode/byggmax",
	},

	// Mat & levering
	"foodora": {
		"https://www.cuponation.no/foodora-rabattkoder",
		"https://kickback.no/rabattkode/foodora",
	},
	"wolt": {
		"https://www.cuponation.no/wolt-rabattkoder",
		"https://kickback.no/rabattkode/wolt",
	},
	"morgenlevering": {
		"https://www.cuponation.no/morgenlevering-rabattkoder",
		"https://kickback.no/rabattkode/morgenlevering",
	},

	// Kjæledyr
	"zooplus": {
		"https://www.cuponation.no/zooplus-rabattkoder",
		"https://kickback.no/rabattkode/zooplus",
	},

	// Reise
	"hotels": {
		"https://www.cuponation.no/hotels-com-rabattkoder",
		"https://kickback.no/rabattkode/hotels",
	},
	"colorline": {
		"https://www.cuponation.no/color-line-rabattkoder",
		"https://kickback.no/rabattkode/color-line",
	},
	"norwegian": {
		"https://www.cuponation.no/norwegian-rabattkoder",
		"https://kickback.no/rabattkode/norwegian",
	},
	"ving": {
		"https://www.cuponation.no/ving-rabattkoder",
		"https://kickback.no/rabattkode/ving",
	},
	"apollo": {
		"https://www.cuponation.no/apollo-rabattkoder",
		"https://kickback.no/rabattkode/apollo",
	},
	"dfds": {
		"https://www.cuponation.no/dfds-rabattkoder",
		"https://kickback.no/rabattkode/dfds",
	},

	// Bøker & media
	"adlibris": {
		"https://www.cuponation.no/adlibris-rabattkoder",
		"https://kickback.no/rabattkode/adlibris",
	},
}
