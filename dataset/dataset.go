// Package dataset reads the wine quality training CSV.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"go.uber.org/multierr"

	"winequality/wine"
)

const QualityColumn = "quality"

var (
	ErrMissingColumn = errors.New("missing column")
	ErrEmpty         = errors.New("dataset has no rows")
	ErrInvalidRow    = errors.New("invalid row")
)

// Measurement is a CSV cell that must hold a finite number.
type Measurement float64

func (m *Measurement) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite value %q", s)
	}
	*m = Measurement(v)
	return nil
}

// Score is the integer quality grade. "6.0" is accepted, "6.5" is not.
type Score int

func (q *Score) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("empty quality")
	}
	if v, err := strconv.Atoi(s); err == nil {
		*q = Score(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return fmt.Errorf("quality %q is not an integer", s)
	}
	*q = Score(f)
	return nil
}

// Row is one record of the WineQT layout. The optional "Id" column has no
// field here, so it is dropped on read.
type Row struct {
	FixedAcidity       Measurement `csv:"fixed acidity"`
	VolatileAcidity    Measurement `csv:"volatile acidity"`
	CitricAcid         Measurement `csv:"citric acid"`
	ResidualSugar      Measurement `csv:"residual sugar"`
	Chlorides          Measurement `csv:"chlorides"`
	FreeSulfurDioxide  Measurement `csv:"free sulfur dioxide"`
	TotalSulfurDioxide Measurement `csv:"total sulfur dioxide"`
	Density            Measurement `csv:"density"`
	PH                 Measurement `csv:"pH"`
	Sulphates          Measurement `csv:"sulphates"`
	Alcohol            Measurement `csv:"alcohol"`
	Quality            Score       `csv:"quality"`
}

func (r Row) Sample() wine.Sample {
	return wine.Sample{
		FixedAcidity:       float64(r.FixedAcidity),
		VolatileAcidity:    float64(r.VolatileAcidity),
		CitricAcid:         float64(r.CitricAcid),
		ResidualSugar:      float64(r.ResidualSugar),
		Chlorides:          float64(r.Chlorides),
		FreeSulfurDioxide:  float64(r.FreeSulfurDioxide),
		TotalSulfurDioxide: float64(r.TotalSulfurDioxide),
		Density:            float64(r.Density),
		PH:                 float64(r.PH),
		Sulphates:          float64(r.Sulphates),
		Alcohol:            float64(r.Alcohol),
	}
}

type Rows []Row

// Matrix returns the feature vectors in wine.Sample order.
func (rows Rows) Matrix() [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Sample().Vector()
	}
	return out
}

func (rows Rows) Labels(scheme wine.Scheme) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = scheme.Classify(int(r.Quality))
	}
	return out
}

// LabelCounts is the class histogram under scheme, keyed by label.
func (rows Rows) LabelCounts(scheme wine.Scheme) map[wine.Label]int {
	counts := make(map[wine.Label]int, scheme.Size())
	for _, r := range rows {
		counts[scheme.LabelFor(int(r.Quality))]++
	}
	return counts
}

func RequiredColumns() []string {
	return append(wine.FeatureColumns(), QualityColumn)
}

func Load(path string) (Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func Read(r io.Reader) (Rows, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if err := checkHeader(data); err != nil {
		return nil, err
	}

	var rows []Row
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRow, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	if err := validate(rows); err != nil {
		return nil, err
	}
	return Rows(rows), nil
}

func checkHeader(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err == io.EOF {
		return ErrEmpty
	}
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(header))
	for _, name := range header {
		present[name] = true
	}
	var missing []string
	for _, name := range RequiredColumns() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

func validate(rows []Row) error {
	var err error
	for i, r := range rows {
		if r.Quality < 0 || r.Quality > 10 {
			// +2: one for the header, one for 1-based line numbers.
			err = multierr.Append(err, fmt.Errorf("%w: line %d: quality %d outside 0-10", ErrInvalidRow, i+2, r.Quality))
		}
		for j, v := range r.Sample().Vector() {
			if v < 0 {
				err = multierr.Append(err, fmt.Errorf("%w: line %d: negative %s", ErrInvalidRow, i+2, wine.FeatureColumns()[j]))
			}
		}
	}
	return err
}
