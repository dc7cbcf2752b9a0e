package main

import (
	"time"

	"github.com/pascaldekloe/metrics"
)

var (
	metricStatic      = metrics.MustCounter("docroot_response_static", "Number of files served with 200")
	metricDenied      = metrics.MustCounter("docroot_response_denied", "Number of requests for paths outside the document root")
	metricNotFound    = metrics.MustCounter("docroot_response_not_found", "Number of requests for missing files")
	metricPageMissing = metrics.MustCounter("docroot_response_page_missing", "Number of error pages that could not be loaded")
	metricGatewayOk   = metrics.MustCounter("docroot_gateway_ok", "Number of successful gateway calls")
	metricGatewayFail = metrics.MustCounter("docroot_gateway_fail", "Number of failed gateway calls")
	metricGatewayTime = metrics.MustCounter("docroot_gateway_time", "Total time spent in gateway calls in ms")
)

func measure(metric *metrics.Counter, f func()) {
	start := time.Now()
	f()
	metric.Add(uint64(time.Since(start).Milliseconds()))
}
