package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "fedpress"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host                   string
		HttpPort               int      `yaml:"httpPort"`
		Domain                 string   `yaml:"domain"`
		DeliveryIntervalSec    int      `yaml:"deliveryIntervalSec"`
		DeliveryBatchSize      int      `yaml:"deliveryBatchSize"`
		DeliveryTimeoutSec     int      `yaml:"deliveryTimeoutSec"`
		FollowerErrorThreshold int      `yaml:"followerErrorThreshold"`
		FederatedPostTypes     []string `yaml:"federatedPostTypes"`
	}
}

// PostTypeFederated reports whether a post type has opted into federation
func (c *AppConfig) PostTypeFederated(postType string) bool {
	for _, t := range c.Conf.FederatedPostTypes {
		if t == postType {
			return true
		}
	}
	return false
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("FEDPRESS_HOST")
	envHttpPort := os.Getenv("FEDPRESS_HTTPPORT")
	envDomain := os.Getenv("FEDPRESS_DOMAIN")
	envInterval := os.Getenv("FEDPRESS_DELIVERY_INTERVAL")
	envBatchSize := os.Getenv("FEDPRESS_DELIVERY_BATCHSIZE")
	envTimeout := os.Getenv("FEDPRESS_DELIVERY_TIMEOUT")
	envThreshold := os.Getenv("FEDPRESS_ERROR_THRESHOLD")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envInterval != "" {
		v, err := strconv.Atoi(envInterval)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.DeliveryIntervalSec = v
	}

	if envBatchSize != "" {
		v, err := strconv.Atoi(envBatchSize)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.DeliveryBatchSize = v
	}

	if envTimeout != "" {
		v, err := strconv.Atoi(envTimeout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.DeliveryTimeoutSec = v
	}

	if envThreshold != "" {
		v, err := strconv.Atoi(envThreshold)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.FollowerErrorThreshold = v
	}

	return c, nil
}
