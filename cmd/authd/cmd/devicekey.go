package cmd

import "encoding/base64"

// decodeDeviceKey decodes a base64-encoded shared access key, matching the
// Azure IoT Hub MQTT auth plugin's handling of SharedAccessKey values.
func decodeDeviceKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
