package core

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// deviceSelection is the outcome of picking a GPU for presentation work:
// the physical device, the queue family that does both graphics and
// presentation, and the logical device with its single queue.
type deviceSelection struct {
	physicalDevice   vk.PhysicalDevice
	queueFamilyIndex uint32
	device           vk.Device
	queue            vk.Queue
}

// selectDevice walks the available physical devices, discards any that
// miss a required extension and picks the first one with a queue family
// that has the graphics bit set and can present to the surface. Selection
// is first-match, there is no scoring between discrete and integrated
// GPUs and no fallback when nothing qualifies.
func selectDevice(devices []vk.PhysicalDevice, surface vk.Surface, requiredExtensions []string) (vk.PhysicalDevice, uint32, error) {
	for _, physicalDevice := range devices {
		extensions, err := deviceExtensionNames(physicalDevice)
		if err != nil {
			log.WithError(err).Debug("skipping physical device, extension query failed")
			continue
		}
		if !supportsExtensions(extensions, requiredExtensions) {
			continue
		}

		families := queueFamilies(physicalDevice)
		index, ok := pickQueueFamily(families, presentSupport(physicalDevice, surface, len(families)))
		if !ok {
			continue
		}

		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()
		log.WithField("queueFamily", index).Infof("using device: %s", vk.ToString(properties.DeviceName[:]))

		return physicalDevice, index, nil
	}
	return nil, 0, errors.New("no physical device with a graphics and presentation capable queue family")
}

// pickQueueFamily returns the first family index that both carries the
// graphics bit and can present, canPresent being indexed the same way
// as families.
func pickQueueFamily(families []vk.QueueFamilyProperties, canPresent []bool) (uint32, bool) {
	for idx, family := range families {
		if family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		if idx < len(canPresent) && canPresent[idx] {
			return uint32(idx), true
		}
	}
	return 0, false
}

// supportsExtensions reports whether every required extension name
// appears in available.
func supportsExtensions(available, required []string) bool {
	for _, want := range required {
		found := false
		for _, have := range available {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func deviceExtensionNames(physicalDevice vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, nil)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceExtensionProperties()")
	}
	properties := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(physicalDevice, "", &count, properties)); err != nil {
		return nil, errors.Wrap(err, "vk.EnumerateDeviceExtensionProperties()")
	}

	names := make([]string, 0, count)
	for _, property := range properties {
		property.Deref()
		names = append(names, vk.ToString(property.ExtensionName[:]))
	}
	return names, nil
}

func queueFamilies(physicalDevice vk.PhysicalDevice) []vk.QueueFamilyProperties {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(physicalDevice, &count, families)
	for idx := range families {
		families[idx].Deref()
	}
	return families
}

func presentSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, familyCount int) []bool {
	supported := make([]bool, familyCount)
	for idx := range supported {
		var support vk.Bool32
		if err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(physicalDevice, uint32(idx), surface, &support)); err != nil {
			continue
		}
		supported[idx] = support.B()
	}
	return supported
}

// createLogicalDevice creates the logical device with exactly one queue
// from the selected family and returns that queue with it.
func createLogicalDevice(physicalDevice vk.PhysicalDevice, queueFamilyIndex uint32, extensions []string) (vk.Device, vk.Queue, error) {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	deviceInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(physicalDevice, &deviceInfo, nil, &device)); err != nil {
		return nil, nil, errors.Wrap(err, "vk.CreateDevice()")
	}

	var queue vk.Queue
	vk.GetDeviceQueue(device, queueFamilyIndex, 0, &queue)

	return device, queue, nil
}
