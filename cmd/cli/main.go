package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"

	srg "github.com/cqgc/sequencing-run-gateway"
	"github.com/docopt/docopt-go"
	"go.opentelemetry.io/otel"
)

const usage = `sequencing-run-gateway.

Usage:
  sequencing-run-gateway -h | --help
  sequencing-run-gateway --whhost=<hostname> --whport=<port>
                         --whtoken=<token>
                         --whpath=<path>
                         --metricstable=<table>
                         --momurl=<momurl>
                         --momcert=<momcert>
                         --momkey=<momkey>
                         --momcons=<momcons>
                         --mompw=<mompw>
                         --momsub=<momsub>
                         --momrrf=<momrrf>
                         --mommf=<mommf>
                         --nanuqserver=<url>
                         --nanuqcreds=<path>
                         --ptserver=<url>
                         --ptauth=<auth>
                         --ptsecret=<secret>
                         --bsserver=<url>
                         --bstoken=<token>
                         --emgserver=<url>
                         --emguser=<user>
                         --emgpw=<pw>
                         --qlinserver=<url>
                         --qlinemail=<email>
                         --qlinpw=<pw>
                         --awslogin=<script>
                         --awsprofile=<profile>
                         --awsregion=<region>
                         --awssession=<seconds>
                         --casebucket=<bucket>
                         --runsdir=<dir>
                         --sentinel=<filename>
                         --tracerhost=<hostname>
                         --tracerport=<port>
                         --servicename=<name>
                         [--webhookurl=<url>]
                         [--validate-only]
Options:
  -h --help                Show this screen.
  --whhost=<hostname>      Databricks SQL warehouse hostname.
  --whport=<port>          Databricks SQL warehouse port.
  --whtoken=<token>        Databricks personal access token.
  --whpath=<path>          The HTTP path to the Databricks SQL warehouse.
  --metricstable=<table>   The warehouse table where per-sample run metrics are stored.
  --momurl=<momurl>        The messaging system URL.
  --momcert=<momcert>      The messaging system certificate.
  --momkey=<momkey>        The messaging system cert key.
  --momcons=<momcons>      The messaging system consumer (id)
  --mompw=<mompw>          The messaging system consumer pw.
  --momsub=<momsub>        The messaging system subject (topic).
  --momrrf=<momrrf>        The messaging system run-ready topic filter.
  --mommf=<mommf>          The messaging system sample-metrics topic filter.
  --nanuqserver=<url>      The Nanuq LIMS base URL.
  --nanuqcreds=<path>      The Nanuq credentials file (j_username=...&j_password=...).
  --ptserver=<url>         The Phenotips base URL.
  --ptauth=<auth>          The Phenotips Authorization header value.
  --ptsecret=<secret>      The Phenotips X-Gene42-Secret header value.
  --bsserver=<url>         The BaseSpace API base URL.
  --bstoken=<token>        The BaseSpace access token.
  --emgserver=<url>        The Emedgene base URL.
  --emguser=<user>         The Emedgene API user.
  --emgpw=<pw>             The Emedgene API password.
  --qlinserver=<url>       The QLIN base URL.
  --qlinemail=<email>      The QLIN account email.
  --qlinpw=<pw>            The QLIN account password.
  --awslogin=<script>      The AWS login script refreshing the creds profile.
  --awsprofile=<profile>   The AWS creds profile.
  --awsregion=<region>     The AWS region.
  --awssession=<seconds>   The AWS session lifetime in seconds.
  --casebucket=<bucket>    The bucket where submitted case payloads are archived.
  --runsdir=<dir>          The sequencer output directory to watch.
  --sentinel=<filename>    The file marking a run folder as complete (CopyComplete.txt).
  --tracerhost=<hostname>  OTel Tracer hostname.
  --tracerport=<port>      OTel Tracer port.
  --servicename=<name>     The service name traces are reported under.
  --webhookurl=<url>       The webhook notified when a run's cases are created.
  --validate-only          Dry-run the QLIN payloads, create nothing there.
`

func setupSignalListener(cancel context.CancelFunc, wg *sync.WaitGroup) {

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)

	go func(wg *sync.WaitGroup) {
		// block until signal is received
		s := <-c
		log.Printf("Got signal: '%s', shutting down Sequencing Run Gateway...\n", s)
		cancel()
		wg.Wait()
	}(wg)
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func main() {
	args, err := docopt.ParseDoc(usage)
	handleError(err, "Arguments cannot be parsed")

	var config srg.Config
	err = args.Bind(&config)
	handleError(err, "Error binding arguments")

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	setupSignalListener(cancel, &wg)

	shutdownTracer := srg.InitTracerProvider(ctx, config.TracerHost, config.TracerPort, config.ServiceName, "prod")
	defer shutdownTracer()
	tracer := otel.Tracer(config.ServiceName + "-tracer")

	warehouseService, err := srg.NewWarehouseService(config.WarehouseHost, config.WarehousePort, config.WarehousePath, config.WarehouseToken, config.MetricsTable)
	handleError(err, "Warehouse service cannot be created")
	defer warehouseService.Close()

	nanuqService, err := srg.NewNanuqServiceFromFile(config.NanuqServer, config.NanuqCreds)
	handleError(err, "Nanuq service cannot be created")
	phenotipsService := srg.NewPhenotipsService(config.PhenotipsServer, config.PhenotipsAuth, config.PhenotipsSecret)
	basespaceService := srg.NewBaseSpaceService(config.BaseSpaceServer, config.BaseSpaceToken)
	emedgeneService := srg.NewEmedgeneService(config.EmedgeneServer, config.EmedgeneUser, config.EmedgenePassword)
	qlinService := srg.NewQLINService(config.QlinServer, config.QlinEmail, config.QlinPassword)
	awsS3Service := srg.NewAWSS3Service(config.AWSLoginScript, config.AWSProfile, config.AWSRegion, config.AWSSessionSecs)

	caseService := srg.NewCaseService(nanuqService, phenotipsService, basespaceService, emedgeneService, qlinService, awsS3Service, config.CaseBucket)

	// runs finishing on the local sequencer are processed directly, runs
	// announced by the lab infrastructure come in over the messaging system
	runWatcher := srg.NewRunWatcher(config.RunsDir, config.RunSentinel, 15*time.Minute)
	runs, err := runWatcher.Watch(ctx)
	handleError(err, "Run watcher cannot be created")
	wg.Add(1)
	go func() {
		defer wg.Done()
		for run := range runs {
			if err := caseService.ProcessRun(ctx, run, config.ValidateOnly); err != nil {
				log.Printf("Failed to process run %s: %v", run, err)
				continue
			}
			if config.WebhookURL != "" {
				if err := srg.NotifyRunProcessed(config.WebhookURL, run); err != nil {
					log.Printf("Failed to notify for run %s: %v", run, err)
				}
			}
		}
	}()

	runEventService, err := srg.NewRunEventService(config.MomUrl, config.MomCert, config.MomKey, config.MomCons, config.MomPw, caseService, warehouseService, config.ValidateOnly)
	handleError(err, "Run event service cannot be created")
	if err := runEventService.Run(ctx, config.MomCons, config.MomSub, config.MomRrf, config.MomMf, config.WebhookURL, tracer); err != nil {
		os.Exit(1)
	}
	log.Println("Exiting Sequencing Run Gateway...")

}
