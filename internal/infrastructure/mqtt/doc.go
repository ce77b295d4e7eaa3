// Package mqtt is the broker link of the control network core.
//
// Traffic on the broker:
//
//	field nodes ──► controlnet/signal/{nodeID}     ──► core (ingress)
//	core        ──► controlnet/event/{name}        ──► SCADA, dashboards
//	core        ◄─► controlnet/remote/{site}/...   ◄─► remote sites
//	core        ──► controlnet/system/status       (retained presence)
//
// Presence is a retained Status message. The broker publishes the offline
// form as the Last Will when the core drops without Close.
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.WithSite(cfg.Site.ID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	runtime.SetRemoteTransport(client)
package mqtt
