package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/Azure/go-amqp"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/AstralVarkon/azure-iot-sdks/internal/auth"
	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/cbs"
	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/sas"
	"github.com/AstralVarkon/azure-iot-sdks/internal/clock"
	"github.com/AstralVarkon/azure-iot-sdks/internal/config"
	"github.com/AstralVarkon/azure-iot-sdks/internal/metrics"
	"github.com/AstralVarkon/azure-iot-sdks/internal/transport/mqtttrigger"
)

func run(cmd *cobra.Command, args []string) error {
	tasks := []func() error{
		setLogLevel,
		printStartMessage,
		setupMetrics,
	}
	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	store, authenticator, err := setupAuthenticator()
	if err != nil {
		return errors.Wrap(err, "authd: setup authenticator error")
	}

	var wg sync.WaitGroup
	statusChan := make(chan struct{ old, new auth.Status }, 16)

	if err := authenticator.Start(func(old, new auth.Status) {
		statusChan <- struct{ old, new auth.Status }{old, new}
	}); err != nil {
		return errors.Wrap(err, "authd: start authenticator error")
	}

	var trigger *mqtttrigger.Trigger
	if config.C.Transport.MQTTTrigger.Enabled && store.CredentialType() == auth.CredentialDeviceKey {
		trigger, err = setupMQTTTrigger(store, authenticator)
		if err != nil {
			return errors.Wrap(err, "authd: setup mqtt trigger error")
		}
		if err := trigger.Start(); err != nil {
			return errors.Wrap(err, "authd: start mqtt trigger error")
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := range statusChan {
			log.WithFields(log.Fields{
				"device_id": store.DeviceID(),
				"old":       s.old,
				"new":       s.new,
			}).Info("authd: status changed")
		}
	}()

	ticker := time.NewTicker(config.C.Auth.DoWorkInterval)
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ticker.C:
				authenticator.DoWork()
			case <-done:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("authd: signal received")
	log.Warning("authd: shutting down")

	ticker.Stop()
	close(done)
	if trigger != nil {
		trigger.Close()
	}

	stopped := make(chan auth.StopResult, 1)
	if err := authenticator.Stop(func(result auth.StopResult) {
		stopped <- result
	}); err != nil {
		log.WithError(err).Warning("authd: stop error")
	} else {
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			log.Warning("authd: timed out waiting for stop completion")
		}
	}

	close(statusChan)
	wg.Wait()
	return nil
}

func setLogLevel() error {
	log.SetLevel(log.Level(uint8(config.C.General.LogLevel)))
	return nil
}

func printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
	}).Info("starting authd")
	return nil
}

func setupMetrics() error {
	if err := metrics.Setup(config.C); err != nil {
		return errors.Wrap(err, "setup metrics error")
	}
	return nil
}

func setupAuthenticator() (*auth.Store, *auth.Authenticator, error) {
	credential, err := credentialFromConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := auth.NewStore(auth.Identity{
		DeviceID: config.C.Auth.DeviceID,
		HubFQDN:  config.C.Auth.HubFQDN,
	}, credential)
	if err != nil {
		return nil, nil, errors.Wrap(err, "authd: new credential store error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := amqp.Dial(ctx, config.C.AMQP.URL, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "authd: amqp dial error")
	}

	cbsClient, err := cbs.NewAMQPClient(ctx, conn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "authd: new cbs client error")
	}

	authenticator, err := auth.New(store, cbsClient, sas.HMACSigner{}, clock.Wall{}, auth.Options{
		SASTokenLifetime:    config.C.Auth.SASTokenLifetime,
		SASTokenRefreshTime: config.C.Auth.SASTokenRefreshTime,
		CBSRequestTimeout:   config.C.Auth.CBSRequestTimeout,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "authd: new authenticator error")
	}

	return store, authenticator, nil
}

// setupMQTTTrigger wires an independent MQTT connection whose connect/
// reconnect cadence calls authenticator.DoWork, as an example of the
// "enclosing transport loop" spec.md §1 puts out of the core's scope. Its
// own token is signed straight from the configured device key; it carries
// no relation to the CBS-submitted token and is never passed to the core.
func setupMQTTTrigger(store *auth.Store, authenticator *auth.Authenticator) (*mqtttrigger.Trigger, error) {
	key, err := decodeDeviceKey(config.C.Auth.DeviceKey)
	if err != nil {
		return nil, errors.Wrap(err, "authd: decode device key error")
	}

	signer := sas.HMACSigner{}
	tokenFn := func() (string, error) {
		expiry := time.Now().Add(time.Hour).Unix()
		return signer.Sign(key, store.Audience(), "", expiry)
	}

	return mqtttrigger.New(mqtttrigger.Config{
		Hostname: store.HubFQDN(),
		DeviceID: store.DeviceID(),
		Interval: config.C.Transport.MQTTTrigger.Interval,
	}, tokenFn, authenticator.DoWork)
}

func credentialFromConfig() (auth.Credential, error) {
	switch {
	case config.C.Auth.DeviceKey != "":
		key, err := decodeDeviceKey(config.C.Auth.DeviceKey)
		if err != nil {
			return auth.Credential{}, errors.Wrap(err, "authd: decode device key error")
		}
		return auth.Credential{Type: auth.CredentialDeviceKey, Key: key}, nil
	case config.C.Auth.DeviceSASToken != "":
		return auth.Credential{Type: auth.CredentialDeviceSASToken, Token: config.C.Auth.DeviceSASToken}, nil
	default:
		return auth.Credential{}, errors.New("authd: neither device_key nor device_sas_token configured")
	}
}
