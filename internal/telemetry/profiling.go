package telemetry

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// EnableProfiling mounts the pprof handlers under /debug/pprof and runtime
// statistics under /debug/runtime.
func (ms *MonitoringServer) EnableProfiling() {
	g := ms.engine.Group("/debug")
	g.GET("/pprof/", gin.WrapF(pprof.Index))
	g.GET("/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/pprof/profile", gin.WrapF(pprof.Profile))
	g.GET("/pprof/symbol", gin.WrapF(pprof.Symbol))
	g.POST("/pprof/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/pprof/trace", gin.WrapF(pprof.Trace))
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		g.GET("/pprof/"+name, gin.WrapH(pprof.Handler(name)))
	}
	g.GET("/runtime", runtimeStatsHandler)
}

func runtimeStatsHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"memory": gin.H{
			"alloc_mb":       bToMb(m.Alloc),
			"total_alloc_mb": bToMb(m.TotalAlloc),
			"sys_mb":         bToMb(m.Sys),
			"heap_inuse_mb":  bToMb(m.HeapInuse),
			"heap_objects":   m.HeapObjects,
		},
		"gc": gin.H{
			"num_gc":          m.NumGC,
			"gc_cpu_fraction": m.GCCPUFraction,
			"pause_total_ns":  m.PauseTotalNs,
		},
		"goroutines": runtime.NumGoroutine(),
		"cpu_cores":  runtime.NumCPU(),
		"go_version": runtime.Version(),
		"timestamp":  time.Now(),
	})
}

func bToMb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
