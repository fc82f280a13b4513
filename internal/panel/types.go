package panel

// FormationFlag is the tri-state formation (business birth) indicator on a
// client-month record. Unknown means the provider could not determine
// whether the client is a newly formed business; unknown records are
// excluded from formation-rate denominators, never counted as false.
type FormationFlag int8

const (
	FormationUnknown FormationFlag = iota
	FormationFalse
	FormationTrue
)

// String returns the flag label used in output tables.
func (f FormationFlag) String() string {
	switch f {
	case FormationTrue:
		return "true"
	case FormationFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Record is one client in one month. Records are immutable inputs for a
// pipeline run; each (client, period) pair occurs at most once.
type Record struct {
	ClientID    string
	Period      Period
	NAICS       string // zero-padded 6-digit code
	Supersector string // derived from NAICS
	StateFIPS   string
	SizeClass   string // derived from employment
	Employment  int64  // >= 0
	Formation   FormationFlag
	EntryPeriod Period  // first month the client appears in the panel
	ExitPeriod  *Period // last month before a permanent exit, nil while active

	// Optional fields, present only when the matching capability is set.
	GrossPay  float64  // monthly gross pay, 0 when absent
	WorkerIDs []string // worker identifiers employed this month
}

// Capabilities lists the optional record fields present in an ingested
// panel. It is computed once at ingest so analyses can branch on an
// explicit value instead of probing columns per call.
type Capabilities struct {
	HasPay       bool
	HasWorkerIDs bool
	HasFormation bool
	HasFiling    bool
}

// Level identifies a grouping level of the aggregation.
type Level string

const (
	LevelNational             Level = "national"
	LevelSupersector          Level = "supersector"
	LevelState                Level = "state"
	LevelSizeClass            Level = "size_class"
	LevelSupersectorState     Level = "supersector_state"
	LevelSupersectorSizeClass Level = "supersector_size_class"
)

// Dimension is a categorical grouping dimension of a Record.
type Dimension string

const (
	DimSupersector Dimension = "supersector"
	DimState       Dimension = "state_fips"
	DimSizeClass   Dimension = "size_class"
)

// GroupingSpec pairs a level name with the dimensions it groups by. The
// empty dimension list is the national total.
type GroupingSpec struct {
	Level      Level
	Dimensions []Dimension
}

// DefaultGroupings are the six aggregation levels computed per run.
var DefaultGroupings = []GroupingSpec{
	{Level: LevelNational},
	{Level: LevelSupersector, Dimensions: []Dimension{DimSupersector}},
	{Level: LevelState, Dimensions: []Dimension{DimState}},
	{Level: LevelSizeClass, Dimensions: []Dimension{DimSizeClass}},
	{Level: LevelSupersectorState, Dimensions: []Dimension{DimSupersector, DimState}},
	{Level: LevelSupersectorSizeClass, Dimensions: []Dimension{DimSupersector, DimSizeClass}},
}

// CellKey uniquely identifies a cell: grouping level, the dimension values
// that level groups by (empty string for unused dimensions), and period.
type CellKey struct {
	Level       Level
	Supersector string
	StateFIPS   string
	SizeClass   string
	Period      Period
}

// Cell is one (grouping-level, dimension-value-combination, period) summary.
// Cells are derived entirely from Records and never mutated afterwards.
type Cell struct {
	Key CellKey

	Employment            int64
	ActiveClients         int // clients with employment > 0
	Formations            int // formation flag == true
	FormationDeterminable int // formation flag != unknown
	Entries               int // clients whose entry month is this period
	Exits                 int // clients whose exit month is this period
	ContinuingEmployment  int64
}

// DimensionValue returns the record's value for the given dimension.
func (r *Record) DimensionValue(d Dimension) string {
	switch d {
	case DimSupersector:
		return r.Supersector
	case DimState:
		return r.StateFIPS
	case DimSizeClass:
		return r.SizeClass
	default:
		return ""
	}
}

// keyFor builds the cell key for a record under a grouping spec.
func keyFor(r *Record, spec GroupingSpec, period Period) CellKey {
	key := CellKey{Level: spec.Level, Period: period}
	for _, d := range spec.Dimensions {
		switch d {
		case DimSupersector:
			key.Supersector = r.Supersector
		case DimState:
			key.StateFIPS = r.StateFIPS
		case DimSizeClass:
			key.SizeClass = r.SizeClass
		}
	}
	return key
}

// DimensionValue returns the key's value for the given dimension.
func (k CellKey) DimensionValue(d Dimension) string {
	switch d {
	case DimSupersector:
		return k.Supersector
	case DimState:
		return k.StateFIPS
	case DimSizeClass:
		return k.SizeClass
	default:
		return ""
	}
}
