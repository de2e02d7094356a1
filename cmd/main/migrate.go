package main

import (
	"fmt"
	"os"

	"vaultd/pkg/config"
	"vaultd/pkg/model"
	"vaultd/pkg/xetcd"

	"github.com/nats-io/nats.go"
)

// PrepareForDeploy prepares mysql, nats, etcd for deployment with docker compose
func PrepareForDeploy() (err error) {

	// 0. Check if prepared

	filePath := "/tmp/vaultd_prepared_flag"

	_, err = os.Stat(filePath)
	if err == nil || !os.IsNotExist(err) {
		// already prepared, just wait
		select {}
	}

	// 1. Prepare database

	db := model.GetMySQL()

	type TableName struct {
		TableName string `gorm:"column:TABLE_NAME"`
	}
	var tableNames []TableName
	db.Raw("SELECT TABLE_NAME FROM information_schema.tables WHERE table_schema = DATABASE()").Scan(&tableNames)

	for _, t := range tableNames {
		db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", t.TableName))
	}

	db.AutoMigrate(model.Lastkv{})
	db.AutoMigrate(model.Balance{})
	db.AutoMigrate(model.Asset{})
	db.AutoMigrate(model.VaultSnap{})

	// 2. Prepare nats

	// Connect to nats and create the request stream
	natsUrl := config.Shared.Nats.Main.Url

	var nc *nats.Conn

	logger.Infof("nats connecting %s", natsUrl)
	nc, err = nats.Connect(natsUrl)
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}
	logger.Infof("nats connected %s", natsUrl)

	// Create JetStream Context
	var js nats.JetStreamContext
	js, err = nc.JetStream()
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}

	// Create a Stream covering requests and events
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "VAULT",
		Subjects: []string{"VAULT.>"},
	})
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}

	// 3. Prepare etcd

	err = xetcd.Put(xetcd.KeyNatsService(), natsUrl)
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}
	err = xetcd.Put(xetcd.KeyVaultService(), "vault:12341")
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}

	// 4. Create flag file -- set prepared

	_, err = os.Create(filePath)
	if err != nil {
		logger.Debugf("migrate prepare failed with err:%s", err)
		return
	}

	logger.Infof("migrate prepared")
	select {}
}
