package wine

const (
	AlcoholThreshold         = 11.5
	SulphatesThreshold       = 0.7
	VolatileAcidityThreshold = 0.6
)

const (
	AdviceIncreaseAlcohol         = "Increase alcohol content: good wines usually sit at 11.5% or above."
	AdviceIncreaseSulphates       = "Increase sulphates: good wines usually have 0.7 g/L or more."
	AdviceDecreaseVolatileAcidity = "Decrease volatile acidity: values above 0.6 g/L give a vinegar taint."
	AdviceLooksGood               = "Key parameters are within the typical range of good wines."
)

// Advise applies the fixed heuristic rules. They read only alcohol, sulphates
// and volatile acidity and ignore the model, so they can disagree with the
// predicted label.
func Advise(s Sample) []string {
	var advice []string
	if s.Alcohol < AlcoholThreshold {
		advice = append(advice, AdviceIncreaseAlcohol)
	}
	if s.Sulphates < SulphatesThreshold {
		advice = append(advice, AdviceIncreaseSulphates)
	}
	if s.VolatileAcidity > VolatileAcidityThreshold {
		advice = append(advice, AdviceDecreaseVolatileAcidity)
	}
	if len(advice) == 0 {
		return []string{AdviceLooksGood}
	}
	return advice
}

// ProfileEntry is one line of the static "what good wine looks like" panel.
type ProfileEntry struct {
	Feature string `json:"feature"`
	Typical string `json:"typical"`
}

func GoodWineProfile() []ProfileEntry {
	return []ProfileEntry{
		{Feature: "Alcohol", Typical: "11.5% – 14%"},
		{Feature: "Sulphates", Typical: "0.7 – 1.0 g/L"},
		{Feature: "Volatile Acidity", Typical: "below 0.6 g/L"},
		{Feature: "Citric Acid", Typical: "0.3 – 0.5 g/L"},
		{Feature: "pH", Typical: "3.2 – 3.4"},
	}
}
