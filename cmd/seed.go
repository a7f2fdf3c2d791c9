package cmd

import (
	"fmt"
	"log"

	"github.com/fieldops/request-service/internal/config"
	"github.com/fieldops/request-service/internal/database"
	"github.com/fieldops/request-service/internal/model"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo reference data (company, client, sites, systems, users)",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		company := model.Company{Name: "Acme Facilities Group"}
		if err := tx.Where(model.Company{Name: company.Name}).FirstOrCreate(&company).Error; err != nil {
			return err
		}
		client := model.Client{Name: "Northwind Retail", CompanyID: company.ID}
		if err := tx.Where(model.Client{Name: client.Name}).FirstOrCreate(&client).Error; err != nil {
			return err
		}
		sites := []model.Site{
			{Name: "Downtown Store", ClientID: client.ID},
			{Name: "Harbor Warehouse", ClientID: client.ID},
		}
		for i := range sites {
			if err := tx.Where(model.Site{Name: sites[i].Name, ClientID: client.ID}).FirstOrCreate(&sites[i]).Error; err != nil {
				return err
			}
		}
		hvac := model.SystemType{Name: "HVAC"}
		if err := tx.Where(model.SystemType{Name: hvac.Name}).FirstOrCreate(&hvac).Error; err != nil {
			return err
		}
		systems := []model.System{
			{Name: "Rooftop Unit 1", SystemTypeID: &hvac.ID},
			{Name: "Cold Room Compressor", SystemTypeID: &hvac.ID},
		}
		for i := range systems {
			if err := tx.Where(model.System{Name: systems[i].Name}).FirstOrCreate(&systems[i]).Error; err != nil {
				return err
			}
		}
		supervisor := model.User{Name: "Sam Ortega", Role: model.RoleSupervisor}
		if err := tx.Where(model.User{Name: supervisor.Name}).FirstOrCreate(&supervisor).Error; err != nil {
			return err
		}
		users := []model.User{
			{Name: "Riley Chen", Role: model.RoleTechnician, SupervisorID: &supervisor.ID},
			{Name: "Dana Okafor", Role: model.RoleOperator},
			{Name: "Noa Levin", Role: model.RoleClient, ClientID: &client.ID},
		}
		for i := range users {
			if err := tx.Where(model.User{Name: users[i].Name}).FirstOrCreate(&users[i]).Error; err != nil {
				return err
			}
		}
		log.Println("seed: ok")
		return nil
	})
}
