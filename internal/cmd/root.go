package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the whisperwatch CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whisperwatch",
		Short: "Watch-folder media transcription daemon",
		Long:  "Whisperwatch - watches a folder for audio and video files and transcribes them through a whisper-asr-webservice instance",
	}

	rootCmd.AddCommand(NewWatchCmd())
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}
