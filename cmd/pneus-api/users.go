package main

import (
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUsersCommand() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage login rows",
	}

	var name, password string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Provision a login",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, closeDB, err := openUserService()
			if err != nil {
				return err
			}
			defer closeDB()

			user, err := service.Create(cmd.Context(), name, password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", user.Name)
			return err
		},
	}
	addCmd.Flags().StringVar(&name, "nome", "", "Login name")
	addCmd.Flags().StringVar(&password, "senha", "", "Login password")
	_ = addCmd.MarkFlagRequired("nome")
	_ = addCmd.MarkFlagRequired("senha")

	var active bool
	activeCmd := &cobra.Command{
		Use:   "set-active <nome>",
		Short: "Enable or disable a login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, closeDB, err := openUserService()
			if err != nil {
				return err
			}
			defer closeDB()
			return service.SetActive(cmd.Context(), args[0], active)
		},
	}
	activeCmd.Flags().BoolVar(&active, "ativo", true, "Whether the login may authenticate")

	usersCmd.AddCommand(addCmd, activeCmd)
	return usersCmd
}

func openUserService() (*users.Service, func(), error) {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	db, err := openDatabase(appConfig, logger)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		_ = database.Close(db)
		_ = logger.Sync()
	}
	service, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return service, closeDB, nil
}
