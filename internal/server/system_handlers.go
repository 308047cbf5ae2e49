package server

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/aristath/meridian/internal/di"
	"github.com/aristath/meridian/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers handles system-wide monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	container   *di.Container
	jobs        *di.JobInstances
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status        string  `json:"status"`
	UptimeHours   float64 `json:"uptime_hours"`
	CPUPercent    float64 `json:"cpu_percent"`
	RAMPercent    float64 `json:"ram_percent"`
	ScheduledJobs int     `json:"scheduled_jobs"`
	DataDir       string  `json:"data_dir"`
	LastChecked   string  `json:"last_checked"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name    string  `json:"name"`
	Path    string  `json:"path"`
	Profile string  `json:"profile"`
	SizeMB  float64 `json:"size_mb"`
}

// DatabaseStatsResponse is the payload of GET /api/system/database/stats
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, dataDir string, container *di.Container, jobs *di.JobInstances) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		container:   container,
		jobs:        jobs,
	}
}

// HandleSystemStatus returns process uptime and host load
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, ramPercent := h.getSystemStats()
	entries := 0
	if h.container != nil && h.container.Scheduler != nil {
		entries = h.container.Scheduler.Entries()
	}

	h.writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:        "running",
		UptimeHours:   time.Since(h.startupTime).Hours(),
		CPUPercent:    cpuPercent,
		RAMPercent:    ramPercent,
		ScheduledJobs: entries,
		DataDir:       h.dataDir,
		LastChecked:   time.Now().Format(time.RFC3339),
	})
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	response := DatabaseStatsResponse{
		Databases:   []DBInfo{},
		LastChecked: time.Now().Format(time.RFC3339),
	}
	if h.container != nil {
		for _, db := range h.container.Databases() {
			if db == nil {
				continue
			}
			info := DBInfo{Name: db.Name(), Path: db.Path(), Profile: string(db.Profile())}
			if stat, err := os.Stat(db.Path()); err == nil {
				info.SizeMB = float64(stat.Size()) / 1024 / 1024
				response.TotalSizeMB += info.SizeMB
			}
			response.Databases = append(response.Databases, info)
		}
	}
	sort.Slice(response.Databases, func(i, j int) bool {
		return response.Databases[i].Name < response.Databases[j].Name
	})

	h.writeJSON(w, http.StatusOK, response)
}

// HandleTriggerRetention runs the retention job immediately
func (h *SystemHandlers) HandleTriggerRetention(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.jobs.Retention == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "retention job not registered"})
		return
	}
	h.runJob(w, h.jobs.Retention)
}

// HandleTriggerWALCheckpoint runs the WAL checkpoint check immediately
func (h *SystemHandlers) HandleTriggerWALCheckpoint(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.jobs.WALCheckpoint == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "wal checkpoint job not registered"})
		return
	}
	h.runJob(w, h.jobs.WALCheckpoint)
}

// HandleTriggerBackup uploads a database backup immediately
func (h *SystemHandlers) HandleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil || h.jobs.Backup == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups are not configured"})
		return
	}
	h.runJob(w, h.jobs.Backup)
}

// HandleListBackups lists stored backup archives, newest first
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.container == nil || h.container.BackupService == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "backups are not configured"})
		return
	}

	backups, err := h.container.BackupService.ListBackups(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list backups")
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

func (h *SystemHandlers) runJob(w http.ResponseWriter, job scheduler.Job) {
	var err error
	if h.container != nil && h.container.Scheduler != nil {
		err = h.container.Scheduler.RunNow(job)
	} else {
		err = job.Run()
	}
	if err != nil {
		h.log.Error().Err(err).Str("job", job.Name()).Msg("Manual job run failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "completed",
		"job":    job.Name(),
		"ran_at": time.Now().Format(time.RFC3339),
	})
}

// getSystemStats calculates CPU and RAM usage percentages.
// A 100ms sample keeps the status endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	usage := 0.0
	if len(cpuPercent) > 0 {
		usage = cpuPercent[0]
	}
	return usage, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
