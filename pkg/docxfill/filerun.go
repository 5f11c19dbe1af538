package docxfill

import (
	"context"
	"fmt"
	"time"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

// FileState is the state of one file during Replace.
type FileState int

const (
	StatePending FileState = iota
	StateBackedUp
	StateApplying
	StateCommitted
	StateRolledBack
	StateCleaned
)

func (s FileState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBackedUp:
		return "backed-up"
	case StateApplying:
		return "applying"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	case StateCleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of each state. Pending goes straight to
// Cleaned when a file is left untouched: nothing to replace, or a failure before any
// backup or write.
var transitions = map[FileState][]FileState{
	StatePending:    {StateBackedUp, StateCleaned},
	StateBackedUp:   {StateApplying},
	StateApplying:   {StateCommitted, StateRolledBack},
	StateCommitted:  {StateCleaned},
	StateRolledBack: {StateCleaned},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to FileState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// fileRun drives one file through the replace state machine.
type fileRun struct {
	file    TemplateFile
	state   FileState
	history []FileState
	log     *Logger
}

func newFileRun(file TemplateFile, log *Logger) *fileRun {
	return &fileRun{
		file:    file,
		state:   StatePending,
		history: []FileState{StatePending},
		log:     log.WithField("file", file.Path),
	}
}

func (r *fileRun) transition(to FileState) error {
	if !CanTransition(r.state, to) {
		return NewError(Unexpected, "state transition", r.file.Path,
			fmt.Errorf("illegal transition %s -> %s", r.state, to))
	}
	r.log.Debug("State %s -> %s", r.state, to)
	r.state = to
	r.history = append(r.history, to)
	return nil
}

// replaceJob holds what a file run needs from the operation.
type replaceJob struct {
	planner *planner
	applier *applier
	backups *BackupCoordinator
	options ReplaceOptions
}

// run performs scan, plan, backup and apply for one file. The context bounds the
// work; the caller detaches it from batch cancellation.
func (r *fileRun) run(ctx context.Context, job *replaceJob) (result FileReplaceResult) {
	start := time.Now()
	result.File = r.file

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Err = classify("file replacement", r.file.Path, AccessNone, RecoverError(rec))
			if r.state == StateApplying {
				r.rollback(job, &result)
			}
		}
		r.finish(job, &result)
		result.State = r.state
		result.Duration = time.Since(start)
	}()

	pkg, err := docxml.Open(r.file.Path)
	if err != nil {
		result.Err = classify("file reading", r.file.Path, AccessRead, err)
		return result
	}

	plan, err := job.planner.planFile(r.file, pkg)
	if err != nil {
		result.Err = err
		return result
	}

	if plan.Replacements == 0 {
		result.Success = true
		return result
	}

	if err := ctx.Err(); err != nil {
		result.Err = classify("file replacement", r.file.Path, AccessNone, err)
		return result
	}

	if job.options.Backup.Enabled {
		backupPath, err := job.backups.Backup(r.file.Path)
		if err != nil {
			result.Err = err
			return result
		}
		result.BackupPath = backupPath
	}
	if err := r.transition(StateBackedUp); err != nil {
		result.Err = err
		return result
	}

	if err := r.transition(StateApplying); err != nil {
		result.Err = err
		return result
	}
	if err := job.applier.apply(ctx, pkg, plan, r.file.Path); err != nil {
		result.Err = err
		r.rollback(job, &result)
		return result
	}

	if err := r.transition(StateCommitted); err != nil {
		result.Err = err
		return result
	}
	result.Success = true
	result.Replacements = plan.Replacements
	r.log.Info("Replaced %d placeholders", plan.Replacements)
	return result
}

// rollback restores the original bytes after a failure in Applying.
func (r *fileRun) rollback(job *replaceJob, result *FileReplaceResult) {
	r.log.Error("Replacement failed: %v", result.Err)

	if result.BackupPath != "" {
		if err := job.backups.Restore(r.file.Path); err != nil {
			// The backup stays on disk so the original can still be recovered by hand.
			result.Err = WithContext(result.Err, "rollback", map[string]interface{}{
				"restore_error": err,
				"backup":        result.BackupPath,
			})
			job.backups.Release(r.file.Path)
			r.log.Error("Restore failed, backup kept at %s: %v", result.BackupPath, err)
		} else {
			r.log.Warn("Restored original from %s", result.BackupPath)
		}
	}
	if err := r.transition(StateRolledBack); err != nil && result.Err == nil {
		result.Err = err
	}
}

// finish moves the run into Cleaned, removing the backup unless it is retained.
func (r *fileRun) finish(job *replaceJob, result *FileReplaceResult) {
	if r.state == StateCleaned {
		return
	}

	if result.BackupPath != "" {
		if _, tracked := job.backups.BackupPath(r.file.Path); tracked {
			if job.options.Backup.Retain {
				job.backups.Release(r.file.Path)
			} else if err := job.backups.Cleanup(r.file.Path); err != nil {
				r.log.Warn("Failed to remove backup: %v", err)
			} else {
				result.BackupPath = ""
			}
		}
	}

	if err := r.transition(StateCleaned); err != nil {
		r.log.Error("%v", err)
	}
}
