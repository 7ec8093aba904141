package analysis

import "testing"

func benchmarkSignals(sr int) ([]float64, []float64) {
	a := makeDecaySine(sr, 261.63, 2.0, 0.8)
	b := makeDecaySine(sr, 262.1, 2.0, 0.7)
	return a, b
}

func BenchmarkCompare(b *testing.B) {
	sr := 48000
	ref, cand := benchmarkSignals(sr)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Compare(ref, cand, sr)
	}
}

func BenchmarkSpectralRMSEDB(b *testing.B) {
	ref, cand := benchmarkSignals(48000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = spectralRMSEDB(ref, cand)
	}
}

func BenchmarkEstimateLag(b *testing.B) {
	ref, cand := benchmarkSignals(48000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = estimateLag(ref, cand, 4800)
	}
}
