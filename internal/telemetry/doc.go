// Package telemetry implements the snapshot generator for the operations radar.
//
// A Snapshot carries one ModuleStatus and one TaskStat per configured module,
// in caller order. Values come from a pluggable MetricsSource; the generator
// validates the sample and stamps it with the injected Clock.
//
// Wire format (push transport):
//
//	{"aiStatus":[{"name","status","log"}],"taskStats":[{"name","orders","success","failed"}]}
//
// The success rate is serialized as a decimal string with one fractional digit.
package telemetry
