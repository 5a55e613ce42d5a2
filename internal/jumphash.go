package internal

// JumpHash maps key onto one of numBuckets buckets with the Jump consistent
// hash of Lamping and Veach (https://arxiv.org/abs/1406.2294), so that
// growing the node list moves only 1/n of the keys.
// Copied from: https://github.com/dgryski/go-jump
func JumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 1 {
		return 0
	}

	b, j := int64(-1), int64(0)
	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}
