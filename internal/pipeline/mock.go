package pipeline

import (
	"context"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/internal/document"
)

// handleAudioTranscribe 模拟转写，只给输入文件打标记
func handleAudioTranscribe(ctx context.Context, run *Run) error {
	cfg := run.Config
	if run.Source.Type != document.Audio {
		run.Logger().WithField("type", run.Source.Type).Warn("Item may not be an audio file")
	}

	run.Logger().WithFields(logrus.Fields{
		"language":             cfg.Language,
		"include_timestamps":   cfg.IncludeTimestamps,
		"confidence_threshold": cfg.ConfidenceThreshold,
	}).Info("Mock transcription completed")

	run.Metadata["transcribed"] = "true"
	run.Metadata["transcription_language"] = cfg.Language
	run.Metadata["timestamps_included"] = strconv.FormatBool(cfg.IncludeTimestamps)
	run.Metadata["confidence_threshold"] = strconv.FormatFloat(cfg.ConfidenceThreshold, 'f', -1, 64)
	return nil
}

// handleAttachmentProcess 模拟附件处理，只给输入文件打标记
func handleAttachmentProcess(ctx context.Context, run *Run) error {
	run.Logger().WithFields(logrus.Fields{
		"processing_mode": run.Config.ProcessingMode,
		"save_original":   run.Config.SaveOriginal,
	}).Info("Mock attachment processing completed")

	run.Metadata["processed_attachments"] = "true"
	run.Metadata["processing_mode"] = run.Config.ProcessingMode
	return nil
}
