package ztd

// Internal events are delivered through the callback mechanism so node
// lifecycle stages can be observed without touching the host event channel.

type internalNodeEnumerated struct {
	node *node
}

type internalDeviceAdded struct {
	device *device
}

type internalDeviceRemoved struct {
	device *device
}
