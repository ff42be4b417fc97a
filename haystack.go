// Package haystack turns a 28-byte public key into the BLE advertisement
// that makes a device findable through Apple's Find My offline-finding
// network, as popularized by OpenHaystack.
//
// The encoder is pure: a PublicKey yields a random static DeviceAddress and
// an offline-finding Payload. A Beacon ties the encoder to a key store and a
// radio backend (see the keystore, hci and bluez packages).
package haystack // import "github.com/haystackgo/haystack"
