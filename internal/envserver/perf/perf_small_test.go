//go:build perf

package perf

import "testing"

var smallConfig = perfConfig{
	Suppliers:  4,
	FeatureDim: 8,
	Days:       365,
	Envs:       8,
}

func BenchmarkEpisodeSmall(b *testing.B) {
	benchmarkEpisodes(b, smallConfig)
}

func BenchmarkVecEnvSmall(b *testing.B) {
	benchmarkVecEnv(b, smallConfig)
}

func BenchmarkSessionStepSmall(b *testing.B) {
	benchmarkSessionSteps(b, smallConfig)
}
