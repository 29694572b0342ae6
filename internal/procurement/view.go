package procurement

// View holds the Required and Ordered buckets keyed by entry id. A View is
// never mutated: Apply returns a new View and leaves the receiver intact, so
// readers can hold on to a snapshot while the mutator moves on.
type View struct {
	buckets [2]*bucket
}

type bucket struct {
	order []string
	rows  map[string]Requirement
}

func newBucket() *bucket {
	return &bucket{rows: make(map[string]Requirement)}
}

func (b *bucket) clone() *bucket {
	c := &bucket{
		order: make([]string, len(b.order)),
		rows:  make(map[string]Requirement, len(b.rows)),
	}
	copy(c.order, b.order)
	for id, row := range b.rows {
		c.rows[id] = row
	}
	return c
}

func (b *bucket) upsert(row Requirement) {
	if _, ok := b.rows[row.ID]; !ok {
		b.order = append(b.order, row.ID)
	}
	b.rows[row.ID] = row
}

func (b *bucket) remove(id string) {
	if _, ok := b.rows[id]; !ok {
		return
	}
	delete(b.rows, id)
	for i, existing := range b.order {
		if existing == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// NewView partitions rows into their buckets, keeping input order. A later
// row with an id already present replaces the earlier one.
func NewView(rows []Requirement) View {
	v := View{buckets: [2]*bucket{newBucket(), newBucket()}}
	required, ordered := Partition(rows)
	for _, row := range required {
		v.buckets[BucketRequired].upsert(row)
	}
	for _, row := range ordered {
		v.buckets[BucketOrdered].upsert(row)
	}
	return v
}

func (v View) at(b Bucket) *bucket {
	if b != BucketOrdered {
		b = BucketRequired
	}
	if v.buckets[b] == nil {
		return newBucket()
	}
	return v.buckets[b]
}

// Get returns the row with id in bucket b
func (v View) Get(b Bucket, id string) (Requirement, bool) {
	row, ok := v.at(b).rows[id]
	return row, ok
}

// Rows returns a copy of bucket b in view order
func (v View) Rows(b Bucket) []Requirement {
	bk := v.at(b)
	rows := make([]Requirement, 0, len(bk.order))
	for _, id := range bk.order {
		rows = append(rows, bk.rows[id])
	}
	return rows
}

// Len returns the number of rows in bucket b
func (v View) Len(b Bucket) int {
	return len(v.at(b).order)
}

// Members returns the rows of bucket b belonging to group key, in view order
func (v View) Members(b Bucket, key GroupKey) []Requirement {
	var members []Requirement
	for _, row := range v.Rows(b) {
		if row.Key() == key {
			members = append(members, row)
		}
	}
	return members
}

// PatchOp is the kind of change a Patch makes
type PatchOp int

const (
	OpUpsert PatchOp = iota
	OpRemove
)

// String method for PatchOp enum
func (op PatchOp) String() string {
	switch op {
	case OpUpsert:
		return "upsert"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Patch is a single change to a View
type Patch struct {
	Op     PatchOp
	Bucket Bucket
	ID     string
	Row    Requirement
}

// Upsert inserts row into its bucket, or replaces the row with the same id in place
func Upsert(row Requirement) Patch {
	return Patch{Op: OpUpsert, Bucket: row.Bucket, ID: row.ID, Row: row}
}

// Remove deletes id from bucket b. Removing an absent id is a no-op.
func Remove(b Bucket, id string) Patch {
	return Patch{Op: OpRemove, Bucket: b, ID: id}
}

// Apply returns v with p applied. Only the touched bucket is copied.
func Apply(v View, p Patch) View {
	next := View{buckets: [2]*bucket{v.at(BucketRequired), v.at(BucketOrdered)}}
	bk := next.at(p.Bucket).clone()

	switch p.Op {
	case OpUpsert:
		row := p.Row
		row.Bucket = p.Bucket
		row.ID = p.ID
		bk.upsert(row)
	case OpRemove:
		bk.remove(p.ID)
	}

	if p.Bucket == BucketOrdered {
		next.buckets[BucketOrdered] = bk
	} else {
		next.buckets[BucketRequired] = bk
	}
	return next
}

// ApplyAll folds patches over v in order
func ApplyAll(v View, patches []Patch) View {
	for _, p := range patches {
		v = Apply(v, p)
	}
	return v
}
