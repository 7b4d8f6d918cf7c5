package registrar

import (
	"strings"

	"github.com/goliatone/go-backorder/core"
	"github.com/nyaruka/phonenumbers"
)

const (
	UnitTypeLocal = "LOCAL"

	RegionUS = 101
	RegionCA = 102

	CarrierTierUS = 10000252
	CarrierTierCA = 10000253
)

// canadianAreaCodes backs the library lookup for numbers whose exchange is
// not assigned, which phonenumbers cannot place in a region.
var canadianAreaCodes = map[string]struct{}{
	"204": {}, "226": {}, "236": {}, "249": {}, "250": {}, "289": {}, "306": {},
	"343": {}, "365": {}, "403": {}, "416": {}, "418": {}, "431": {}, "437": {},
	"438": {}, "450": {}, "506": {}, "514": {}, "519": {}, "548": {}, "579": {},
	"581": {}, "587": {}, "604": {}, "613": {}, "639": {}, "647": {}, "705": {},
	"709": {}, "742": {}, "778": {}, "780": {}, "782": {}, "807": {}, "819": {},
	"825": {}, "867": {}, "873": {}, "902": {}, "905": {},
}

// Classifier derives the registrar attributes of a unit from its id alone.
type Classifier struct {
	CarrierID string
}

func NewClassifier(carrierID string) Classifier {
	carrierID = strings.TrimSpace(carrierID)
	if carrierID == "" {
		carrierID = core.DefaultCarrierID
	}
	return Classifier{CarrierID: carrierID}
}

func (c Classifier) Classify(unitID string) core.Unit {
	number := NormalizeNumber(unitID)
	unit := core.Unit{
		ID:            number,
		UnitType:      UnitTypeLocal,
		RegionID:      RegionUS,
		CarrierTierID: CarrierTierUS,
		CarrierID:     c.CarrierID,
		VoiceEnabled:  true,
		SMSEnabled:    true,
		MMSEnabled:    true,
	}
	if unit.CarrierID == "" {
		unit.CarrierID = core.DefaultCarrierID
	}
	if regionFor(number) == "CA" {
		unit.RegionID = RegionCA
		unit.CarrierTierID = CarrierTierCA
	}
	return unit
}

// NormalizeNumber turns a 10 digit NANP number into E.164 and prefixes any
// other digit string with "+".
func NormalizeNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return raw
	}
	if len(digits) == 10 {
		return "+1" + digits
	}
	return "+" + digits
}

// AreaCode returns the NANP area code of an E.164 number.
func AreaCode(number string) string {
	if !strings.HasPrefix(number, "+1") || len(number) < 5 {
		return ""
	}
	return number[2:5]
}

func regionFor(number string) string {
	if parsed, err := phonenumbers.Parse(number, "US"); err == nil {
		if region := phonenumbers.GetRegionCodeForNumber(parsed); region == "CA" || region == "US" {
			return region
		}
	}
	if _, ok := canadianAreaCodes[AreaCode(number)]; ok {
		return "CA"
	}
	return "US"
}

var _ core.UnitClassifier = Classifier{}
