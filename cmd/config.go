// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/evkit/pkg/config"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration template",
	Long: `Write an example configuration for a KX134 accelerometer on I2C.

Use --output - to print the template instead of writing a file. An existing
file is only replaced with --force.`,
	// The template must be writable even when the current configuration is broken
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration after defaults, environment and flags",
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)
	configInitCmd.Flags().StringVarP(&configOutput, "output", "o", config.DefaultConfigName+".yaml", "Template destination, - for standard output")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Replace an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if configOutput == "-" {
		data, err := config.Template()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := config.WriteTemplate(configOutput, configForce); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	fmt.Printf("Wrote %s\n", configOutput)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}
