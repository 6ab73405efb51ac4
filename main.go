package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fedpress/fedpress/activitypub"
	"github.com/fedpress/fedpress/db"
	"github.com/fedpress/fedpress/domain"
	"github.com/fedpress/fedpress/outbox"
	"github.com/fedpress/fedpress/scheduler"
	"github.com/fedpress/fedpress/util"
	"github.com/fedpress/fedpress/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Running database migrations...")
	database := db.GetDB()
	if err := database.RunMigrations(); err != nil {
		log.Printf("Warning: Migration errors (may be normal if tables exist): %v", err)
	}
	log.Println("Database migrations complete")

	ensureAccount(database, "admin")

	queue := outbox.NewService(database, database, conf)

	sched := scheduler.New(queue, database, conf)
	events := make(chan domain.LifecycleEvent, 64)
	sched.Subscribe(events)

	deliverer := activitypub.NewDeliverer(database, conf)
	activitypub.StartDeliveryWorker(queue, deliverer, conf)

	startServing(conf, queue, events)
}

// ensureAccount creates the local publishing account on first start
func ensureAccount(database *db.DB, username string) *domain.Account {
	err, acc := database.ReadAccByUsername(username)
	if err == nil && acc != nil {
		return acc
	}

	log.Printf("Creating local account %q", username)
	keypair := util.GeneratePemKeypair()
	err, acc = database.CreateAccount(username, "", "", keypair)
	if err != nil {
		log.Fatalln(err)
	}
	return acc
}

func startServing(conf *util.AppConfig, queue *outbox.Service, events chan<- domain.LifecycleEvent) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := web.Router(conf, queue, events); err != nil {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping federation server")
}
