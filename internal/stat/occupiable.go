package stat

// OccupiableLeapArray is a LeapArray whose buckets can absorb "debt" booked
// ahead of time into a companion FutureLeapArray: whenever a bucket in the
// primary ring is created or rolled over, any passes already booked into
// the future ring for that same window start are migrated in and cleared
// from the future ring (so they are not double-counted as still pending).
type OccupiableLeapArray struct {
	Primary *LeapArray
	Future  *FutureLeapArray
}

// NewOccupiableLeapArray builds a primary/future ring pair of identical
// geometry, wired together via the migrate-on-roll hook.
func NewOccupiableLeapArray(sampleCount int, intervalMillis int64) (*OccupiableLeapArray, error) {
	o := &OccupiableLeapArray{}
	future, err := NewFutureLeapArray(sampleCount, intervalMillis)
	if err != nil {
		return nil, err
	}
	o.Future = future

	primary, err := NewLeapArray(sampleCount, intervalMillis, occupiableGenerator{o: o})
	if err != nil {
		return nil, err
	}
	o.Primary = primary
	return o, nil
}

// occupiableGenerator seeds freshly created/reset primary buckets with any
// debt already booked in the future ring for that window.
type occupiableGenerator struct {
	o *OccupiableLeapArray
}

func (g occupiableGenerator) NewEmptyBucket(startMillis int64) *Bucket {
	b := newBucket()
	if booked := g.o.Future.consumeAt(startMillis); booked > 0 {
		b.addPass(booked)
	}
	return b
}

func (g occupiableGenerator) ResetBucketTo(_ *Bucket, startMillis int64) *Bucket {
	return g.NewEmptyBucket(startMillis)
}
